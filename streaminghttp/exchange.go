package streaminghttp

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/ggoodman/mcp-engine-go/transport"
	"github.com/tmaxmax/go-sse"
)

var errResponseCommitted = errors.New("response already committed")

// httpExchange adapts one net/http request/response pair to
// transport.Exchange.
type httpExchange struct {
	w http.ResponseWriter
	r *http.Request

	mu        sync.Mutex
	committed bool
}

var _ transport.Exchange = (*httpExchange)(nil)

func newExchange(w http.ResponseWriter, r *http.Request) *httpExchange {
	return &httpExchange{w: w, r: r}
}

func (e *httpExchange) Context() context.Context     { return e.r.Context() }
func (e *httpExchange) Header(name string) string    { return e.r.Header.Get(name) }
func (e *httpExchange) Query(name string) string     { return e.r.URL.Query().Get(name) }
func (e *httpExchange) SetHeader(name, value string) { e.w.Header().Set(name, value) }

func (e *httpExchange) WriteJSON(status int, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.committed {
		return errResponseCommitted
	}
	e.committed = true
	e.w.Header().Set("Content-Type", jsonMediaType.String())
	e.w.WriteHeader(status)
	_, err := e.w.Write(body)
	return err
}

func (e *httpExchange) OpenStream() (transport.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.committed {
		return nil, errResponseCommitted
	}
	sess, err := sse.Upgrade(e.w, e.r)
	if err != nil {
		return nil, err
	}
	e.committed = true
	// Commit the headers so the client sees the stream open before the
	// first event.
	if err := sess.Flush(); err != nil {
		return nil, err
	}
	return &sseStream{sess: sess, done: e.r.Context().Done()}, nil
}

// sseStream writes events through a go-sse session. The library does not
// serialize concurrent writers.
type sseStream struct {
	mu   sync.Mutex
	sess *sse.Session
	done <-chan struct{}
}

func (s *sseStream) Send(event string, data []byte) error {
	msg := &sse.Message{Type: sse.Type(event)}
	msg.AppendData(string(data))

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return transport.ErrClosed
	default:
	}
	if err := s.sess.Send(msg); err != nil {
		return err
	}
	return s.sess.Flush()
}

func (s *sseStream) Done() <-chan struct{} { return s.done }
