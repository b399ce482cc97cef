package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCompleted_JSON(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	evt := ExportCompleted{
		RunID:       "run-1",
		Profile:     "main",
		Format:      "yml",
		Path:        "/srv/feeds/market.yml",
		Records:     12,
		GeneratedAt: at,
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"run_id": "run-1",
		"profile": "main",
		"format": "yml",
		"path": "/srv/feeds/market.yml",
		"records": 12,
		"generated_at": "2026-10-19T12:00:00Z"
	}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, evt, decoded)

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishExport(context.Background(), ExportCompleted{}))
	assert.NoError(t, p.Close())
}

// natsServer speaks just enough of the NATS client protocol to accept
// connections, answer pings and record published messages.
type natsServer struct {
	ln net.Listener

	mu   sync.Mutex
	msgs []receivedMsg
}

type receivedMsg struct {
	subject string
	header  string
	data    []byte
}

func startNATSServer(t *testing.T) *natsServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &natsServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *natsServer) URL() string {
	return "nats://" + s.ln.Addr().String()
}

func (s *natsServer) Messages() []receivedMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedMsg(nil), s.msgs...)
}

func (s *natsServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *natsServer) handle(conn net.Conn) {
	defer conn.Close()

	fmt.Fprint(conn, `INFO {"server_id":"test","version":"2.10.0","proto":1,"headers":true,"max_payload":1048576}`+"\r\n")

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "PING":
			fmt.Fprint(conn, "PONG\r\n")
		case "HPUB":
			hdrLen, _ := strconv.Atoi(fields[len(fields)-2])
			total, _ := strconv.Atoi(fields[len(fields)-1])
			buf := make([]byte, total+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			s.record(receivedMsg{subject: fields[1], header: string(buf[:hdrLen]), data: buf[hdrLen:total]})
		case "PUB":
			n, _ := strconv.Atoi(fields[len(fields)-1])
			buf := make([]byte, n+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			s.record(receivedMsg{subject: fields[1], data: buf[:n]})
		}
	}
}

func (s *natsServer) record(m receivedMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func TestNATSPublisher_PublishWithoutDeadline(t *testing.T) {
	srv := startNATSServer(t)

	p, err := Connect(srv.URL(), "", time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	err = p.PublishExport(context.Background(), ExportCompleted{
		RunID:   "run-1",
		Profile: "main",
		Format:  "xml",
		Path:    "/srv/feeds/google.xml",
		Records: 3,
	})
	require.NoError(t, err)

	// the flush round trip guarantees the server has read the message
	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultSubject, msgs[0].subject)
	assert.Contains(t, msgs[0].header, "Feed-Profile: main")
	assert.Contains(t, msgs[0].header, "Feed-Format: xml")

	evt, err := Decode(msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, 3, evt.Records)
}

func TestNATSPublisher_PublishWithDeadline(t *testing.T) {
	srv := startNATSServer(t)

	p, err := Connect(srv.URL(), "custom.subject", 0, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, DefaultFlushTimeout, p.flushTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.PublishExport(ctx, ExportCompleted{RunID: "run-2", Profile: "main", Format: "yml"}))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "custom.subject", msgs[0].subject)
}
