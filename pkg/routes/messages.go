package routes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

const defaultMessageLimit = 50

// MessageMeta carries the pagination state the dashboard uses to decide
// whether to render the "load older"/"load newer" affordances.
type MessageMeta struct {
	Limit        int  `json:"limit"`
	Total        int  `json:"total"`
	HasMoreOlder bool `json:"has_more_older"`
	HasMoreNewer bool `json:"has_more_newer"`
	ChannelIndex *int `json:"channel_index"`
	MaxMessages  int  `json:"max_messages"`
}

type MessagesResponse struct {
	Messages []models.MessageRow `json:"messages"`
	Meta     MessageMeta         `json:"meta"`
}

type DirectMessagesResponse struct {
	Messages []models.DirectMessageRow `json:"messages"`
	Meta     MessageMeta               `json:"meta"`
}

// cursorFromRequest builds the pagination cursor from the query string.
// Precedence: newest, then after_rx_time, then before_rx_time.
func cursorFromRequest(r *http.Request, limit int) store.Cursor {
	cur := store.Cursor{Limit: limit}
	if r.URL.Query().Get("newest") == "true" {
		cur.Newest = true
		return cur
	}
	if after := queryInt64(r, "after_rx_time"); after != nil {
		cur.AfterRxTime = after
		return cur
	}
	cur.BeforeRxTime = queryInt64(r, "before_rx_time")
	return cur
}

func (wr *WebRouter) messageLimit(r *http.Request) int {
	limit := intOrDefault(queryInt(r, "limit"), defaultMessageLimit)
	return clamp(limit, 1, wr.config.MaxMessages)
}

func (wr *WebRouter) directMessageLimit(r *http.Request) int {
	limit := intOrDefault(queryInt(r, "limit"), defaultMessageLimit)
	return clamp(limit, 1, wr.config.MaxDirectMessages)
}

func (wr *WebRouter) getMessages(w http.ResponseWriter, r *http.Request) {
	limit := wr.messageLimit(r)
	channelIndex := queryInt(r, "channel_index")

	page, err := wr.storage.Messages.List(channelIndex, cursorFromRequest(r, limit))
	if err != nil {
		slog.Error("error listing messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
		return
	}

	writeJSON(w, http.StatusOK, MessagesResponse{
		Messages: page.Messages,
		Meta: MessageMeta{
			Limit:        limit,
			Total:        page.Total,
			HasMoreOlder: page.HasMoreOlder,
			HasMoreNewer: page.HasMoreNewer,
			ChannelIndex: channelIndex,
			MaxMessages:  wr.config.MaxMessages,
		},
	})
}

func (wr *WebRouter) getMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseInt(mux.Vars(r)["message_id"], 10, 64)
	if err != nil {
		notFound(w, "message not found")
		return
	}
	row, err := wr.storage.Messages.GetByMessageID(messageID)
	if err != nil {
		slog.Error("error fetching message", "message_id", messageID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load message"})
		return
	}
	if row == nil {
		notFound(w, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (wr *WebRouter) getDirectMessages(w http.ResponseWriter, r *http.Request) {
	limit := wr.directMessageLimit(r)

	// With direct message logging off the endpoint stays up but always
	// reports an empty, zeroed page.
	if !wr.config.LogDirectMessages {
		writeJSON(w, http.StatusOK, DirectMessagesResponse{
			Messages: []models.DirectMessageRow{},
			Meta:     MessageMeta{Limit: limit, MaxMessages: wr.config.MaxDirectMessages},
		})
		return
	}

	page, err := wr.storage.DirectMessages.List(cursorFromRequest(r, limit))
	if err != nil {
		slog.Error("error listing direct messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load direct messages"})
		return
	}

	writeJSON(w, http.StatusOK, DirectMessagesResponse{
		Messages: page.Messages,
		Meta: MessageMeta{
			Limit:        limit,
			Total:        page.Total,
			HasMoreOlder: page.HasMoreOlder,
			HasMoreNewer: page.HasMoreNewer,
			MaxMessages:  wr.config.MaxDirectMessages,
		},
	})
}

func (wr *WebRouter) getDirectMessage(w http.ResponseWriter, r *http.Request) {
	if !wr.config.LogDirectMessages {
		notFound(w, "direct message not found")
		return
	}
	messageID, err := strconv.ParseInt(mux.Vars(r)["message_id"], 10, 64)
	if err != nil {
		notFound(w, "direct message not found")
		return
	}
	row, err := wr.storage.DirectMessages.GetByMessageID(messageID)
	if err != nil {
		slog.Error("error fetching direct message", "message_id", messageID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load direct message"})
		return
	}
	if row == nil {
		notFound(w, "direct message not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}
