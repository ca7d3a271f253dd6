// Package replay sends recorded webhook payloads to the service one at a
// time, pacing them like the provider does.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/haulwatch/haulwatch-stack/cli/internal/client"
)

// LoadPayloads reads either a JSON array of payloads or newline-delimited
// JSON objects.
func LoadPayloads(r io.Reader) ([]json.RawMessage, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var payloads []json.RawMessage
		if err := dec.Decode(&payloads); err != nil {
			return nil, fmt.Errorf("decode payload array: %w", err)
		}
		return payloads, nil
	}

	var payloads []json.RawMessage
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return payloads, nil
			}
			return nil, fmt.Errorf("decode payload %d: %w", len(payloads)+1, err)
		}
		payloads = append(payloads, raw)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// Sender delivers one payload.
type Sender interface {
	Send(ctx context.Context, payload []byte) (*client.SendResult, error)
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Index  int
	Result *client.SendResult
	Err    error
}

type Summary struct {
	Sent       int `json:"sent"`
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

func (s *Summary) add(o Outcome) {
	s.Sent++
	switch {
	case o.Err != nil:
		s.Failed++
	case o.Result.Accepted() && o.Result.Duplicate:
		s.Accepted++
		s.Duplicates++
	case o.Result.Accepted():
		s.Accepted++
	case o.Result.StatusCode >= 400 && o.Result.StatusCode < 500:
		s.Rejected++
	default:
		s.Failed++
	}
}

type Replayer struct {
	Sender   Sender
	Interval time.Duration
}

// Run sends payloads in order, waiting Interval between deliveries, and
// calls report after each one. It stops early when ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, payloads []json.RawMessage, report func(Outcome)) (Summary, error) {
	var sum Summary
	for i, p := range payloads {
		if i > 0 && r.Interval > 0 {
			timer := time.NewTimer(r.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return sum, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.Sender.Send(ctx, p)
		o := Outcome{Index: i, Result: res, Err: err}
		sum.add(o)
		if report != nil {
			report(o)
		}
	}
	return sum, nil
}
