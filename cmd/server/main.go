package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/document"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Server struct {
	mu        sync.Mutex
	documents map[string]*document.TextDocument
	clients   map[string][]*websocket.Conn
	upgrader  websocket.Upgrader
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type DocumentRequest struct {
	Agent string `json:"agent"`
	Pos   int    `json:"pos"`
	Text  string `json:"text,omitempty"`
	Len   int    `json:"len,omitempty"`
}

type DocumentResponse struct {
	Content string `json:"content"`
}

// OpPayload is the wire form of one ListOp, carried alongside a
// SerializedDiffEntry since causalgraph's diff format only describes
// identity/parents, not op content.
type OpPayload struct {
	Type    string `json:"type"`
	Pos     int    `json:"pos"`
	Content string `json:"content,omitempty"`
}

// MergeRequest is the wire payload for handleMerge and for the
// websocket broadcast of a local edit: a causal-graph diff plus the op
// content for every LV it describes, in ascending LV order.
type MergeRequest struct {
	Entries []causalgraph.SerializedDiffEntry `json:"entries"`
	Ops     []OpPayload                       `json:"ops"`
}

func NewServer() *Server {
	return &Server{
		documents: make(map[string]*document.TextDocument),
		clients:   make(map[string][]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) getDocument(id string) *document.TextDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, exists := s.documents[id]; exists {
		return doc
	}
	doc := document.CreateTextDocument()
	s.documents[id] = doc
	return doc
}

// diffSince builds a MergeRequest covering every op appended to doc's
// OpLog since before, for broadcasting a local edit to other clients.
func diffSince(doc *document.TextDocument, before int) (MergeRequest, error) {
	after := len(doc.Doc.OpLog.Ops)
	entries, err := causalgraph.SerializeDiff(&doc.Doc.OpLog.CG, []causalgraph.LVRange{
		{Start: causalgraph.LV(before), End: causalgraph.LV(after)},
	})
	if err != nil {
		return MergeRequest{}, err
	}
	ops := make([]OpPayload, 0, after-before)
	for _, op := range doc.Doc.OpLog.Ops[before:after] {
		p := OpPayload{Pos: op.Pos}
		switch op.Type {
		case oplog.Insert:
			p.Type = "ins"
			p.Content = string(op.Content)
		case oplog.Delete:
			p.Type = "del"
		}
		ops = append(ops, p)
	}
	return MergeRequest{Entries: entries, Ops: ops}, nil
}

// applyMergeRequest rebuilds a standalone remote OpLog from req and
// merges it into doc via the real replay engine.
func applyMergeRequest(doc *document.TextDocument, req MergeRequest) error {
	remote := oplog.New[rune]()
	added, err := causalgraph.MergePartialVersions(&remote.CG, req.Entries)
	if err != nil {
		return err
	}
	for i := added.Start; i < added.End; i++ {
		p := req.Ops[int(i-added.Start)]
		op := oplog.ListOp[rune]{Pos: p.Pos}
		switch p.Type {
		case "ins":
			op.Type = oplog.Insert
			r := []rune(p.Content)
			if len(r) > 0 {
				op.Content = r[0]
			}
		case "del":
			op.Type = oplog.Delete
		}
		for int(i) >= len(remote.Ops) {
			remote.Ops = append(remote.Ops, oplog.ListOp[rune]{})
		}
		remote.Ops[i] = op
	}
	return document.MergeTextRemote(doc, remote)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	json.NewDecoder(r.Body).Decode(&req)

	docID := r.URL.Query().Get("doc")
	doc := s.getDocument(docID)

	log.Printf("INSERT: agent=%s pos=%d text=%s doc=%s", req.Agent, req.Pos, req.Text, docID)

	before := len(doc.Doc.OpLog.Ops)
	if err := document.TextDocInsert(doc, causalgraph.AgentID(req.Agent), req.Pos, req.Text); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	diff, err := diffSince(doc, before)
	if err == nil {
		payload, _ := json.Marshal(diff)
		s.broadcastToDocument(docID, WSMessage{Type: "merge", Data: string(payload)})
	}

	json.NewEncoder(w).Encode(DocumentResponse{Content: document.GetTextDocText(doc)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	json.NewDecoder(r.Body).Decode(&req)

	docID := r.URL.Query().Get("doc")
	doc := s.getDocument(docID)

	log.Printf("DELETE: agent=%s pos=%d len=%d doc=%s", req.Agent, req.Pos, req.Len, docID)

	before := len(doc.Doc.OpLog.Ops)
	if err := document.TextDocDelete(doc, causalgraph.AgentID(req.Agent), req.Pos, req.Len); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	diff, err := diffSince(doc, before)
	if err == nil {
		payload, _ := json.Marshal(diff)
		s.broadcastToDocument(docID, WSMessage{Type: "merge", Data: string(payload)})
	}

	json.NewEncoder(w).Encode(DocumentResponse{Content: document.GetTextDocText(doc)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	doc := s.getDocument(docID)
	json.NewEncoder(w).Encode(DocumentResponse{Content: document.GetTextDocText(doc)})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	docID := r.URL.Query().Get("doc")
	doc := s.getDocument(docID)

	if err := applyMergeRequest(doc, req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(DocumentResponse{Content: document.GetTextDocText(doc)})
}

func (s *Server) broadcastToDocument(docID string, msg WSMessage) {
	if clients, exists := s.clients[docID]; exists {
		log.Printf("BROADCAST: sending %s to %d clients", msg.Type, len(clients))
		for _, conn := range clients {
			conn.WriteJSON(msg)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	docID := r.URL.Query().Get("doc")
	agent := causalgraph.AgentID(uuid.NewString())

	s.mu.Lock()
	s.clients[docID] = append(s.clients[docID], conn)
	s.mu.Unlock()

	log.Printf("CLIENT CONNECTED: doc=%s agent=%s total=%d", docID, agent, len(s.clients[docID]))

	doc := s.getDocument(docID)
	conn.WriteJSON(WSMessage{
		Type: "init",
		Data: DocumentResponse{Content: document.GetTextDocText(doc)},
	})

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		log.Printf("MESSAGE: type=%s", msg.Type)

		switch msg.Type {
		case "insert":
			var req DocumentRequest
			json.Unmarshal([]byte(msg.Data.(string)), &req)
			if req.Agent == "" {
				req.Agent = string(agent)
			}
			before := len(doc.Doc.OpLog.Ops)
			if err := document.TextDocInsert(doc, causalgraph.AgentID(req.Agent), req.Pos, req.Text); err != nil {
				log.Printf("insert failed: %v", err)
				continue
			}
			diff, err := diffSince(doc, before)
			if err != nil {
				continue
			}
			payload, _ := json.Marshal(diff)
			s.broadcastToDocument(docID, WSMessage{Type: "merge", Data: string(payload)})

		case "delete":
			var req DocumentRequest
			json.Unmarshal([]byte(msg.Data.(string)), &req)
			if req.Agent == "" {
				req.Agent = string(agent)
			}
			before := len(doc.Doc.OpLog.Ops)
			if err := document.TextDocDelete(doc, causalgraph.AgentID(req.Agent), req.Pos, req.Len); err != nil {
				log.Printf("delete failed: %v", err)
				continue
			}
			diff, err := diffSince(doc, before)
			if err != nil {
				continue
			}
			payload, _ := json.Marshal(diff)
			s.broadcastToDocument(docID, WSMessage{Type: "merge", Data: string(payload)})
		}
	}

	s.mu.Lock()
	for i, c := range s.clients[docID] {
		if c == conn {
			s.clients[docID] = append(s.clients[docID][:i], s.clients[docID][i+1:]...)
			break
		}
	}
	remaining := len(s.clients[docID])
	s.mu.Unlock()
	log.Printf("CLIENT DISCONNECTED: doc=%s remaining=%d", docID, remaining)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	server := NewServer()

	r := mux.NewRouter()
	r.HandleFunc("/ws", server.handleWebSocket)
	r.HandleFunc("/insert", server.handleInsert).Methods("POST")
	r.HandleFunc("/delete", server.handleDelete).Methods("POST")
	r.HandleFunc("/get", server.handleGet).Methods("GET")
	r.HandleFunc("/merge", server.handleMerge).Methods("POST")

	fmt.Printf("API server starting on %s\n", *addr)
	fmt.Printf("WebSocket API: ws://localhost%s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, r))
}
