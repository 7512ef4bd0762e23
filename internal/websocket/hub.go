// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/logging"
)

// Message types.
const (
	MessageTypeActivity      = "activity"
	MessageTypeContactSynced = "contact_synced"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ContactSyncedData is the payload of a contact_synced message.
type ContactSyncedData struct {
	Email     string `json:"email"`
	Source    string `json:"source"`
	ContactID string `json:"contact_id,omitempty"`
	Created   bool   `json:"created"`
}

// Hub tracks connected clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a Hub. Run it with RunWithContext.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// RunWithContext processes registrations and broadcasts until ctx is done,
// then closes every client. Lifecycle events are handled before broadcasts
// so a client registered before a message is sent receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "websocket-hub").Msg("websocket hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "websocket-hub").Msg("websocket hub stopped")
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers message to every client; clients whose send
// buffer is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
}

// Broadcast queues message for every client without blocking.
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastEntry is an activitylog.Listener.
func (h *Hub) BroadcastEntry(entry activitylog.Entry) {
	h.Broadcast(Message{Type: MessageTypeActivity, Data: entry})
}

// BroadcastContactSynced announces a completed upsert.
func (h *Hub) BroadcastContactSynced(data ContactSyncedData) {
	h.Broadcast(Message{Type: MessageTypeContactSynced, Data: data})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
