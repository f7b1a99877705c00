package cache

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"
)

// BucketOpener returns the KV backing a named bucket.
type BucketOpener func(bucket string) (KV, error)

// Server answers the socket protocol on behalf of a set of buckets.
type Server struct {
	open    BucketOpener
	mu      sync.Mutex
	buckets map[string]KV
}

func NewServer(open BucketOpener) *Server {
	return &Server{open: open, buckets: make(map[string]KV)}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) bucket(name string) (KV, error) {
	if name == "" {
		return nil, errors.New("missing bucket")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.buckets[name]; ok {
		return kv, nil
	}
	kv, err := s.open(name)
	if err != nil {
		return nil, err
	}
	s.buckets[name] = kv
	return kv, nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(s.handle(req))
	}
}

func (s *Server) handle(req Request) Response {
	kv, err := s.bucket(req.Bucket)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	switch req.Op {
	case "get":
		e, err := kv.Get(req.Key)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Value: e.Value, StoredAt: e.StoredAt.UnixNano(), TTL: int64(e.TTL)}
	case "put":
		e := Entry{Value: req.Value, StoredAt: time.Unix(0, req.StoredAt), TTL: time.Duration(req.TTL)}
		if err := kv.Put(req.Key, e); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "delete":
		existed, err := kv.Delete(req.Key)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Existed: existed}
	case "clear":
		n, err := kv.Clear()
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Count: n}
	default:
		return Response{OK: false, Error: "unknown op"}
	}
}
