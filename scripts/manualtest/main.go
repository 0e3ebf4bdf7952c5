// Command manualtest is a development puller. It accepts a source on the
// upload path, pulls the whole resource in fixed-size chunks, writes it to
// disk and prints its SHA256 so it can be compared with the original.
//
//	go run ./scripts/manualtest &
//	go run ./cmd/pullsrc send samples/ABC.pdf
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jaywantadh/pullsrc/config"
	"github.com/jaywantadh/pullsrc/internal/channel"
	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/jaywantadh/pullsrc/pkg/env"
)

// puller drives one source. Serve calls its handler methods one at a time, so
// it needs no locking.
type puller struct {
	conn      *channel.Conn
	outDir    string
	chunkSize uint64

	seq    int
	size   uint64
	offset uint64
	out    *os.File
	h      hash.Hash
	path   string
	sum    string
	done   bool
	err    error
}

var _ protocol.Handler = (*puller)(nil)

func (p *puller) request(command protocol.CommandType, param any) {
	raw, err := json.Marshal(param)
	if err != nil {
		p.fail(err)
		return
	}
	p.seq++
	f := protocol.Frame{
		Command:   command,
		RequestID: json.RawMessage(strconv.Itoa(p.seq)),
		Param:     raw,
	}
	if err := p.conn.Send(f); err != nil {
		p.fail(err)
	}
}

func (p *puller) fail(err error) {
	if p.err == nil && !p.done {
		p.err = err
	}
	p.conn.Close()
}

func (p *puller) HandleOpen() {
	p.request(protocol.CommandSize, struct{}{})
}

func (p *puller) HandleFrame(f protocol.Frame) {
	if p.done || p.err != nil {
		return
	}
	if string(f.RequestID) != strconv.Itoa(p.seq) {
		p.fail(fmt.Errorf("reply %s does not match request %d", f.RequestID, p.seq))
		return
	}

	switch f.Command {
	case protocol.CommandSize:
		var r protocol.SizeResult
		if err := json.Unmarshal(f.Param, &r); err != nil {
			p.fail(fmt.Errorf("size: %w", err))
			return
		}
		p.size = r.Size
		p.request(protocol.CommandName, struct{}{})

	case protocol.CommandName:
		var r protocol.NameResult
		if err := json.Unmarshal(f.Param, &r); err != nil {
			p.fail(fmt.Errorf("name: %w", err))
			return
		}
		fmt.Printf("📄 Pulling %s (%d bytes)\n", r.Name, p.size)
		p.path = filepath.Join(p.outDir, filepath.Base(r.Name))
		out, err := os.Create(p.path)
		if err != nil {
			p.fail(err)
			return
		}
		p.out = out
		p.h = sha256.New()
		p.request(protocol.CommandReadAt, protocol.ReadAtParam{Offset: 0, Length: p.chunkSize})

	case protocol.CommandReadAt:
		var r protocol.ReadAtResult
		if err := json.Unmarshal(f.Param, &r); err != nil {
			p.fail(fmt.Errorf("readAt %d: %w", p.offset, err))
			return
		}
		data, err := protocol.DecodeData(r.Data)
		if err != nil {
			p.fail(err)
			return
		}
		if len(data) == 0 {
			p.finish()
			return
		}
		if _, err := p.out.Write(data); err != nil {
			p.fail(err)
			return
		}
		p.h.Write(data)
		p.offset += uint64(len(data))
		p.request(protocol.CommandReadAt, protocol.ReadAtParam{Offset: p.offset, Length: p.chunkSize})

	default:
		p.fail(fmt.Errorf("unexpected %s reply", f.Command))
	}
}

// HandleError records the first failure. The source closing the channel
// after Done is the normal end of a pull.
func (p *puller) HandleError(err error) {
	if p.done {
		return
	}
	p.fail(err)
}

func (p *puller) finish() {
	if p.offset != p.size {
		p.fail(fmt.Errorf("pulled %d bytes, source reported %d", p.offset, p.size))
		return
	}
	if err := p.out.Close(); err != nil {
		p.fail(err)
		return
	}
	p.sum = hex.EncodeToString(p.h.Sum(nil))
	p.request(protocol.CommandDone, map[string]string{"path": p.path, "sha256": p.sum})
	p.done = p.err == nil
}

func main() {
	env.LoadEnv()
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		fmt.Printf("❌ Config load failed: %v\n", err)
		return
	}

	addr := env.GetEnv("PULLER_ADDR", ":8080")
	outDir := env.GetEnv("PULLER_OUT", "pulled_manual")
	once := env.GetBool("PULLER_ONCE", true)
	chunkSize, err := strconv.ParseUint(env.GetEnv("PULLER_CHUNK", "65536"), 10, 64)
	if err != nil || chunkSize == 0 {
		fmt.Printf("❌ Invalid PULLER_CHUNK\n")
		return
	}
	_ = os.MkdirAll(outDir, 0755)

	done := make(chan struct{})
	var stop sync.Once
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.UploadPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Printf("❌ Upgrade failed: %v\n", err)
			return
		}
		fmt.Printf("🔗 Source connected (transfer %s)\n", r.Header.Get("X-Transfer-Id"))

		p := &puller{
			conn: channel.NewConn(ws,
				channel.WithMaxFrameSize(cfg.MaxFrameSize),
				channel.WithWriteTimeout(cfg.WriteTimeout),
			),
			outDir:    outDir,
			chunkSize: chunkSize,
		}
		p.conn.Serve(p)
		p.conn.Close()
		if p.out != nil {
			p.out.Close()
		}

		if p.err != nil {
			fmt.Printf("❌ Pull failed: %v\n", p.err)
			return
		}
		fmt.Printf("📦 Written to: %s\n", p.path)
		fmt.Printf("🔑 Pulled SHA256: %s\n", p.sum)
		if once {
			stop.Do(func() { close(done) })
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-done
		srv.Close()
	}()
	fmt.Printf("🚀 Waiting for a source on %s%s\n", addr, cfg.UploadPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Printf("❌ Server failed: %v\n", err)
	}
}
