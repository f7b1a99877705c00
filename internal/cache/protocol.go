package cache

// Simple JSON protocol for cache daemon over a Unix domain socket.
// One request -> one response using json.Encoder/Decoder per connection.

type Request struct {
	Op       string `json:"op"` // "get" | "put" | "delete" | "clear"
	Bucket   string `json:"bucket"`
	Key      string `json:"key,omitempty"`
	Value    []byte `json:"value,omitempty"`
	StoredAt int64  `json:"stored_at,omitempty"` // unix nanos
	TTL      int64  `json:"ttl_ns,omitempty"`
}

type Response struct {
	OK       bool   `json:"ok"`
	Value    []byte `json:"value,omitempty"`
	StoredAt int64  `json:"stored_at,omitempty"`
	TTL      int64  `json:"ttl_ns,omitempty"`
	Existed  bool   `json:"existed,omitempty"`
	Count    int    `json:"count,omitempty"`
	Error    string `json:"error,omitempty"`
}
