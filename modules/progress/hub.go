package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/metrics"
	"genstudio-server/modules/common/model"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

// Message types
const (
	TypeProgress  = "progress"
	TypeCompleted = "completed"
	TypeFailed    = "failed"
)

// Message - 구독자에게 전송되는 메시지
type Message struct {
	Type         string              `json:"type"`
	TaskID       string              `json:"taskId"`
	Attempt      int                 `json:"attempt,omitempty"`
	Status       string              `json:"status"`
	ResultURLs   []string            `json:"resultUrls,omitempty"`
	StoredAssets []model.StoredAsset `json:"storedAssets,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// TaskLookup resolves the current record of a task; used to answer late subscribers.
type TaskLookup interface {
	Get(ctx context.Context, taskID string) (*model.GenerationTask, error)
}

// 연결된 구독자 정보
type subscriber struct {
	id     string
	taskID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub - task별 websocket 구독 관리
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[string]*subscriber
	lookup   TaskLookup
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHub - allowedOrigin이 "*"이면 모든 origin 허용
func NewHub(lookup TaskLookup, allowedOrigin string, log zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[string]*subscriber),
		lookup: lookup,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: log.With().Str("component", "progress").Logger(),
	}
}

func (h *Hub) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws/tasks/{taskId}", h.HandleSubscribe).Methods(http.MethodGet)
}

// HandleSubscribe - GET /ws/tasks/{taskId}
func (h *Hub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		id:     uuid.NewString(),
		taskID: taskID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.add(sub)

	go h.writePump(sub)
	go h.readPump(sub)

	// 이미 끝난 작업이면 최종 메시지를 바로 보냄
	if h.lookup != nil {
		task, err := h.lookup.Get(r.Context(), taskID)
		if err == nil && task.Status.IsTerminal() {
			h.Finished(task)
		}
	}
}

// Progress implements the per-attempt notification.
func (h *Hub) Progress(taskID string, attempt int, status string) {
	h.broadcast(taskID, Message{Type: TypeProgress, TaskID: taskID, Attempt: attempt, Status: status}, false)
}

// Finished sends the terminal message and disconnects the task's subscribers.
func (h *Hub) Finished(task *model.GenerationTask) {
	msg := Message{
		Type:         TypeCompleted,
		TaskID:       task.TaskID,
		Attempt:      task.Attempts,
		Status:       string(task.Status),
		ResultURLs:   task.ResultURLs,
		StoredAssets: task.StoredAssets,
	}
	if task.Status != model.StatusSucceeded {
		msg.Type = TypeFailed
		msg.Error = task.Error
	}
	h.broadcast(task.TaskID, msg, true)
}

// Subscribers returns the number of open subscriptions for taskID.
func (h *Hub) Subscribers(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[taskID])
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.topics[sub.taskID]
	if !ok {
		clients = make(map[string]*subscriber)
		h.topics[sub.taskID] = clients
	}
	clients[sub.id] = sub
	metrics.ProgressSubscribers.Inc()

	h.log.Debug().Str("task_id", sub.taskID).Str("subscriber", sub.id).Int("subscribers", len(clients)).Msg("subscriber joined")
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// removeLocked - h.mu를 잡은 상태에서 호출
func (h *Hub) removeLocked(sub *subscriber) {
	clients, ok := h.topics[sub.taskID]
	if !ok {
		return
	}
	if _, ok := clients[sub.id]; !ok {
		return
	}
	close(sub.send)
	delete(clients, sub.id)
	metrics.ProgressSubscribers.Dec()
	if len(clients) == 0 {
		delete(h.topics, sub.taskID)
	}
}

func (h *Hub) broadcast(taskID string, msg Message, final bool) {
	body, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.topics[taskID] {
		select {
		case sub.send <- body:
			if final {
				h.removeLocked(sub)
			}
		default:
			// 버퍼가 가득 찬 느린 구독자는 끊음
			h.removeLocked(sub)
		}
	}
}

// 클라이언트 메시지는 사용하지 않음; 연결 종료 감지용
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("subscriber", sub.id).Msg("websocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Debug().Err(err).Str("subscriber", sub.id).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
