package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"revchain/core"
	"revchain/services/archive"
)

const (
	wsWriteTimeout    = 10 * time.Second
	defaultEventLimit = 100
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	holder := strings.TrimSpace(query.Get("holder"))
	if holder != "" {
		id, err := parseAddress(holder)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		holder = formatIdentity(id)
	}
	eventType := strings.TrimSpace(query.Get("type"))
	var after uint64
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: after: %v", errBadRequest, err))
			return
		}
		after = parsed
	}
	limit := defaultEventLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = parsed
	}

	var out []eventResponse
	if s.archive != nil {
		records, err := s.archive.Query(r.Context(), archive.Filter{Holder: holder, Type: eventType, After: after, Limit: limit})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = make([]eventResponse, 0, len(records))
		for _, rec := range records {
			evt, err := eventFromRecord(rec)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			out = append(out, evt)
		}
	} else {
		out = make([]eventResponse, 0)
		for _, evt := range s.ledger.Feed().History(after, 0) {
			if !matchesEvent(evt, holder, eventType) {
				continue
			}
			out = append(out, eventFromCommitted(evt))
			if len(out) == limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func eventFromRecord(rec archive.EventRecord) (eventResponse, error) {
	attrs := make(map[string]string)
	if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
		return eventResponse{}, fmt.Errorf("decode archived attributes: %w", err)
	}
	return eventResponse{
		Cursor:     strconv.FormatUint(rec.Position, 10),
		Sequence:   rec.Sequence,
		Type:       rec.Type,
		Attributes: attrs,
		Timestamp:  rec.Timestamp,
		Digest:     rec.Digest,
	}, nil
}

func matchesEvent(evt core.CommittedEvent, holder, eventType string) bool {
	if eventType != "" && evt.Type != eventType {
		return false
	}
	if holder == "" {
		return true
	}
	for _, key := range []string{"holder", "from", "to", "sender"} {
		if evt.Attributes[key] == holder {
			return true
		}
	}
	return false
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	updates, cancel, backlog, err := s.ledger.Feed().Subscribe(r.Context(), cursor)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Reads are not expected; CloseRead handles client close frames.
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates, backlog); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan core.CommittedEvent, backlog []core.CommittedEvent) error {
	for _, evt := range backlog {
		if err := writeEvent(ctx, conn, evt); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt core.CommittedEvent) error {
	data, err := json.Marshal(eventFromCommitted(evt))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
