package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/relaylabs/chatrelay/internal/server"
	"github.com/relaylabs/chatrelay/internal/storage"
)

const defaultHistoryLimit = 50

func (a *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Printf("json encode: %v", err)
	}
}

// getMessages serves room history over plain HTTP so clients can
// backfill before or after a live session.
func (a *App) getMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := a.verifier.Verify(credential(r)); err != nil {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := storage.GetMessagesParams{
		RoomId: roomID,
		Limit:  defaultHistoryLimit,
	}

	var err error
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		params.Before, err = time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		params.Since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			errResp := NewBadRequestError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		params.Limit, err = strconv.Atoi(limitStr)
		if err != nil || params.Limit < 1 {
			errResp := NewBadRequestError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := a.repo.GetMessages(r.Context(), params)
	if err != nil {
		errResp := NewInternalServerError(err)
		a.log.Println("get messages:", errResp)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	wireMessages := make([]server.Message, 0, len(messages))
	for _, msg := range messages {
		wireMessages = append(wireMessages, server.Message{
			Id:        msg.Id,
			RoomId:    msg.RoomId,
			UserId:    msg.UserId,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt,
		})
	}

	a.writeJson(w, http.StatusOK, wireMessages)
}
