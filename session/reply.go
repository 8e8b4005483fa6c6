package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/ucerr"
)

// track starts waiting for the reply to m if it is a numbered request.
// A request reusing a waiting sequence number replaces it.
func (s *Session) track(m message.Message, now time.Time) {
	req, ok := s.policy.Requests[m.ID]
	if !ok || m.Seq == 0 {
		return
	}
	w := awaitingReply{req: m}
	if req.Timeout > 0 {
		w.deadline = now.Add(req.Timeout)
	}
	s.awaiting[m.Seq] = w
}

// matchReply reports whether m should be delivered. A reply to a
// waiting request stops the wait, unless its id is not an allowed
// reply to that request, which is a disallowed-reply error.
func (s *Session) matchReply(m message.Message) (bool, error) {
	if m.ReplyTo == 0 || len(s.policy.Requests) == 0 {
		return true, nil
	}
	w, ok := s.awaiting[m.ReplyTo]
	if !ok {
		s.counters.Discarded++
		return false, nil
	}
	if allowed := s.policy.Requests[w.req.ID].Replies; len(allowed) > 0 && !allowed.Has(m.ID) {
		return false, ucerr.DisallowedReply(m.ID,
			ucerr.WithSession(s.id),
			ucerr.WithContext(fmt.Sprintf("reply to message %d seq %d", w.req.ID, m.ReplyTo)))
	}
	delete(s.awaiting, m.ReplyTo)
	return true, nil
}

// Timeouts stops waiting for every request whose reply deadline has
// passed and returns those requests in sequence order. Closing
// sessions report nothing.
func (s *Session) Timeouts(now time.Time) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= StateClosing {
		return nil
	}
	var out []message.Message
	for seq, w := range s.awaiting {
		if w.deadline.IsZero() || !now.After(w.deadline) {
			continue
		}
		delete(s.awaiting, seq)
		out = append(out, w.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Awaiting returns the number of requests waiting for a reply.
func (s *Session) Awaiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.awaiting)
}
