package api

import (
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/streamshort/backend/internal/models"
	"github.com/streamshort/backend/internal/upload"
)

// WebSocket message types for upload protocol
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeAck       = "ack"
	MsgTypeProgress  = "progress"
	MsgTypeComplete  = "complete"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// Stage reported while chunks are arriving, before the pipeline starts.
const stageReceiving = "receiving"

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Upload init payload
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"` // decoded length
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// Upload chunk payload
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
}

// Upload complete payload
type UploadCompletePayload struct {
	UploadID string `json:"uploadId"`
}

// WebSocket progress response
type WSProgressResponse struct {
	UploadID string       `json:"uploadId"`
	JobID    string       `json:"jobId,omitempty"`
	State    upload.State `json:"state,omitempty"`
	Progress float64      `json:"progress"`
	Stage    string       `json:"stage,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// WebSocket completion response
type WSCompleteResponse struct {
	UploadID string              `json:"uploadId"`
	JobID    string              `json:"jobId"`
	Record   *models.VideoRecord `json:"record"`
}

// WebSocket error response
type WSErrorResponse struct {
	UploadID string `json:"uploadId,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

// UploadSession tracks an in-progress upload over WebSocket. Chunks are
// appended to a spool file in order.
type UploadSession struct {
	ID          string
	FileName    string
	MimeType    string
	TotalChunks int
	TotalSize   int64
	Encoding    string
	NextChunk   int
	Received    int64
	Spool       *os.File
	CreatedAt   time.Time
}

func (s *UploadSession) discard() {
	s.Spool.Close()
	os.Remove(s.Spool.Name())
}

// wsConn is one client connection. Writes are serialized because pipeline
// progress can arrive from a timer goroutine.
type wsConn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	sessions map[string]*UploadSession
	log      *logrus.Entry
}

// WebSocketHandler manages WebSocket connections for video uploads
type WebSocketHandler struct {
	pipeline Pipeline
	spoolDir string
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewWebSocketHandler creates a new WebSocket upload handler
func NewWebSocketHandler(pipeline Pipeline, spoolDir string, log *logrus.Entry) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline: pipeline,
		spoolDir: spoolDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		log: log,
	}
}

// HandleWebSocket upgrades HTTP connection to WebSocket and handles upload protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := &wsConn{
		ws:       ws,
		sessions: make(map[string]*UploadSession),
		log:      wsh.log.WithField("remote", c.RealIP()),
	}
	defer func() {
		for _, s := range conn.sessions {
			s.discard()
		}
		ws.Close()
	}()

	conn.log.Debug("Client connected")

	conn.send(WSMessage{Type: MsgTypeConnected})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				conn.log.WithError(err).Warn("Connection error")
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			conn.send(WSMessage{Type: MsgTypePong})
		case MsgTypeUploadInit:
			wsh.handleUploadInit(conn, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(conn, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(conn, msg)
		default:
			conn.sendError("", "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	conn.log.Debug("Client disconnected")
	return nil
}

// handleUploadInit opens a spool file for a new chunked upload
func (wsh *WebSocketHandler) handleUploadInit(conn *wsConn, msg WSMessage) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError("", "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if payload.FileName == "" || payload.TotalChunks <= 0 || payload.TotalSize < 0 {
		conn.sendError("", "fileName, totalChunks and totalSize are required", "INVALID_PAYLOAD")
		return
	}

	spool, err := os.CreateTemp(wsh.spoolDir, "ws-upload-*")
	if err != nil {
		conn.log.WithError(err).Error("Failed to create spool file")
		conn.sendError("", "Failed to start upload", "INTERNAL_ERROR")
		return
	}

	session := &UploadSession{
		ID:          uuid.New().String(),
		FileName:    payload.FileName,
		MimeType:    payload.MimeType,
		TotalChunks: payload.TotalChunks,
		TotalSize:   payload.TotalSize,
		Encoding:    payload.Encoding,
		Spool:       spool,
		CreatedAt:   time.Now(),
	}
	conn.sessions[session.ID] = session

	conn.send(WSMessage{Type: MsgTypeAck, ID: session.ID})

	conn.log.WithFields(logrus.Fields{
		"upload": session.ID,
		"file":   payload.FileName,
		"chunks": payload.TotalChunks,
		"bytes":  payload.TotalSize,
	}).Info("Upload initialized")
}

// handleUploadChunk appends a chunk to the spool file
func (wsh *WebSocketHandler) handleUploadChunk(conn *wsConn, msg WSMessage) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError("", "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	session, exists := conn.sessions[payload.UploadID]
	if !exists {
		conn.sendError(payload.UploadID, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	if payload.ChunkIndex != session.NextChunk {
		conn.sendError(payload.UploadID, fmt.Sprintf("Unexpected chunk %d, want %d", payload.ChunkIndex, session.NextChunk), "OUT_OF_ORDER")
		return
	}

	chunkData, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		conn.sendError(payload.UploadID, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	if _, err := session.Spool.Write(chunkData); err != nil {
		conn.log.WithError(err).WithField("upload", session.ID).Error("Failed to write chunk")
		delete(conn.sessions, session.ID)
		session.discard()
		conn.sendError(payload.UploadID, "Failed to store chunk", "INTERNAL_ERROR")
		return
	}
	session.NextChunk++
	session.Received += int64(len(chunkData))

	progress := float64(session.NextChunk) / float64(session.TotalChunks) * 100

	conn.send(WSMessage{
		Type: MsgTypeProgress,
		ID:   payload.UploadID,
		Payload: mustJSON(WSProgressResponse{
			UploadID: payload.UploadID,
			Progress: progress,
			Stage:    stageReceiving,
			Message:  fmt.Sprintf("Received chunk %d/%d", session.NextChunk, session.TotalChunks),
		}),
	})
}

// handleUploadComplete runs the upload pipeline over the spooled file
func (wsh *WebSocketHandler) handleUploadComplete(conn *wsConn, msg WSMessage) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.sendError("", "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	session, exists := conn.sessions[payload.UploadID]
	if !exists {
		conn.sendError(payload.UploadID, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}

	// Verify all chunks received
	if session.NextChunk != session.TotalChunks {
		conn.sendError(payload.UploadID, fmt.Sprintf("Missing chunks: got %d, expected %d",
			session.NextChunk, session.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	delete(conn.sessions, session.ID)
	defer session.discard()

	body, size, closeBody, err := session.decode(wsh.spoolDir)
	if err != nil {
		conn.sendError(payload.UploadID, "Failed to read upload: "+err.Error(), "INVALID_DATA")
		return
	}
	defer closeBody()

	if size != session.TotalSize {
		conn.sendError(payload.UploadID, fmt.Sprintf("Size mismatch: got %d bytes, expected %d",
			size, session.TotalSize), "INCOMPLETE_UPLOAD")
		return
	}

	src := models.FileSource{
		Name:     session.FileName,
		Size:     size,
		MimeType: session.MimeType,
		Body:     body,
	}

	jobID := uuid.New().String()
	observer := func(job upload.Job) {
		conn.send(WSMessage{
			Type: MsgTypeProgress,
			ID:   session.ID,
			Payload: mustJSON(WSProgressResponse{
				UploadID: session.ID,
				JobID:    job.ID,
				State:    job.State,
				Progress: float64(job.Progress),
				Stage:    job.Stage,
			}),
		})
	}

	rec, err := wsh.pipeline.Run(context.Background(), src, jobID, observer)
	if err != nil {
		apiErr := FromPipelineError(err)
		conn.sendError(session.ID, apiErr.Message, apiErr.Code)
		return
	}

	conn.send(WSMessage{
		Type: MsgTypeComplete,
		ID:   session.ID,
		Payload: mustJSON(WSCompleteResponse{
			UploadID: session.ID,
			JobID:    jobID,
			Record:   rec,
		}),
	})
}

// decode rewinds the spool and undoes the transfer encoding, returning the
// body and its decoded length. Gzip payloads are inflated into a second
// spool file in dir so the length is known before the pipeline starts.
func (s *UploadSession) decode(dir string) (io.Reader, int64, func(), error) {
	if _, err := s.Spool.Seek(0, io.SeekStart); err != nil {
		return nil, 0, nil, err
	}
	if s.Encoding != "gzip" {
		return s.Spool, s.Received, func() {}, nil
	}

	zr, err := gzip.NewReader(s.Spool)
	if err != nil {
		return nil, 0, nil, err
	}
	defer zr.Close()

	out, err := os.CreateTemp(dir, "ws-decoded-*")
	if err != nil {
		return nil, 0, nil, err
	}
	cleanup := func() {
		out.Close()
		os.Remove(out.Name())
	}

	n, err := io.Copy(out, zr)
	if err == nil {
		_, err = out.Seek(0, io.SeekStart)
	}
	if err != nil {
		cleanup()
		return nil, 0, nil, err
	}
	return out, n, cleanup, nil
}

func (c *wsConn) send(msg WSMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.WithError(err).Debug("Write failed")
	}
}

func (c *wsConn) sendError(uploadID, message, code string) {
	c.send(WSMessage{
		Type: MsgTypeError,
		ID:   uploadID,
		Payload: mustJSON(WSErrorResponse{
			UploadID: uploadID,
			Message:  message,
			Code:     code,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
