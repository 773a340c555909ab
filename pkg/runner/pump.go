package runner

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type inputResult struct {
	text string
	err  error
}

// linePump reads lines on a goroutine so a blocked read never outlives ctx.
// A cancelled read stops the pump: the goroutine exits after its current read
// and later calls to next return io.EOF.
type linePump struct {
	reader *bufio.Reader
	lines  chan inputResult
	done   chan struct{}
	exited chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func newLinePump(r io.Reader) *linePump {
	return &linePump{
		reader: bufio.NewReader(r),
		lines:  make(chan inputResult),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (p *linePump) start() {
	p.startOnce.Do(func() {
		go p.pump()
	})
}

func (p *linePump) pump() {
	defer close(p.exited)
	defer close(p.lines)
	for {
		text, err := p.reader.ReadString('\n')
		if text != "" && !p.send(inputResult{text: text}) {
			return
		}
		if err != nil {
			if err != io.EOF {
				p.send(inputResult{err: err})
			}
			return
		}
	}
}

// send delivers res unless the pump was stopped first.
func (p *linePump) send(res inputResult) bool {
	select {
	case p.lines <- res:
		return true
	case <-p.done:
		return false
	}
}

func (p *linePump) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// next returns the next trimmed line, io.EOF once the reader is drained or the
// pump is stopped, or ctx.Err().
func (p *linePump) next(ctx context.Context) (string, error) {
	select {
	case <-p.done:
		return "", io.EOF
	default:
	}
	p.start()

	select {
	case <-ctx.Done():
		p.stop()
		return "", ctx.Err()
	case res, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}
