package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/northbeam/portal-api/widget"
)

// console prints new assistant messages as the session changes and runs the
// input loop
type console struct {
	out io.Writer

	mu       sync.Mutex
	printed  int
	doneOnce sync.Once
	done     chan struct{}
}

func newConsole(out io.Writer) *console {
	return &console{out: out, done: make(chan struct{})}
}

func (c *console) onChange(s widget.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ; c.printed < len(s.Messages); c.printed++ {
		msg := s.Messages[c.printed]
		if msg.Role == widget.RoleAssistant {
			fmt.Fprintf(c.out, "assistant> %s\n", msg.Content)
		}
	}
	if s.IsCompleted {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

type chatSession interface {
	SendMessage(ctx context.Context, content string, files []widget.FileDescriptor) error
	UploadFile(ctx context.Context, fileName string, data []byte) (widget.FileDescriptor, error)
	HandleClose(ctx context.Context) error
}

func (c *console) run(ctx context.Context, session chatSession, lines <-chan string, readFile func(string) ([]byte, error)) error {
	var pending []widget.FileDescriptor

	for {
		select {
		case <-c.done:
			fmt.Fprintln(c.out, "Chat ended.")
			return nil
		case <-ctx.Done():
			return session.HandleClose(context.Background())
		case line, ok := <-lines:
			if !ok {
				return session.HandleClose(context.Background())
			}
			line = strings.TrimSpace(line)

			switch {
			case line == "":
				continue
			case line == "/quit":
				err := session.HandleClose(ctx)
				fmt.Fprintln(c.out, "Chat closed.")
				return err
			case strings.HasPrefix(line, "/upload "):
				path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
				data, err := readFile(path)
				if err != nil {
					fmt.Fprintf(c.out, "error: %v\n", err)
					continue
				}
				file, err := session.UploadFile(ctx, path, data)
				if err != nil {
					fmt.Fprintf(c.out, "error: upload failed: %v\n", err)
					continue
				}
				pending = append(pending, file)
				fmt.Fprintf(c.out, "attached %s (%d pending)\n", file.Name, len(pending))
			default:
				err := session.SendMessage(ctx, line, pending)
				switch {
				case errors.Is(err, widget.ErrSessionCompleted):
					fmt.Fprintln(c.out, "Chat ended.")
					return nil
				case err != nil:
					fmt.Fprintf(c.out, "error: %v\n", err)
				default:
					pending = nil
				}
			}
		}
	}
}
