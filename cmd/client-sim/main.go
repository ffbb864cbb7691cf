// Package main is a scripted collaboration client used for smoke-testing an
// authority: it joins a room, performs a few edits, exercises undo, forces a
// save, and leaves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"mindmesh/application/session"
	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/core/valueobjects"
	"mindmesh/infrastructure/channel/websocket"
	"mindmesh/infrastructure/persistence/memory"
	"mindmesh/pkg/clock"
	"mindmesh/pkg/observability"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/ws", "authority WebSocket URL")
		token      = flag.String("token", "", "join token")
		documentID = flag.String("document", "", "document id")
		userID     = flag.String("user", "sim-user", "user id")
		name       = flag.String("name", "Simulator", "display name")
	)
	flag.Parse()

	if *token == "" || *documentID == "" {
		log.Fatal("both -token and -document are required")
	}

	logger, err := observability.NewLogger("development", "debug")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dialURL := fmt.Sprintf("%s?token=%s&name=%s", *url, *token, *name)
	channel, err := websocket.Dial(ctx, dialURL, nil, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	doc := aggregates.NewDocument(*documentID, "Simulated Session")
	doc.Bootstrap()

	sess := session.New(
		session.Config{
			DocumentID:          *documentID,
			Token:               *token,
			Identity:            session.Identity{UserID: *userID, Name: *name, Color: "#f59e0b", Role: session.RoleEditor},
			DebounceInterval:    1500 * time.Millisecond,
			MinSnapshotInterval: 500 * time.Millisecond,
			StatusResetDelay:    2 * time.Second,
			ReannounceCooldown:  1500 * time.Millisecond,
			AutosaveEnabled:     true,
			JoinTimeout:         10 * time.Second,
		},
		doc,
		channel,
		memory.NewDocumentRepository(),
		clock.New(),
		logger,
	)
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	if err := sess.WaitJoined(ctx); err != nil {
		log.Fatalf("Failed to join room: %v", err)
	}
	logger.Info("Joined room, running script")

	first, err := sess.AddNode(valueobjects.Position{X: 120, Y: 80}, "rectangle")
	if err != nil {
		log.Fatalf("Failed to add node: %v", err)
	}
	second, err := sess.AddNode(valueobjects.Position{X: 360, Y: 200}, "circle")
	if err != nil {
		log.Fatalf("Failed to add node: %v", err)
	}

	if _, err := sess.Connect(first, second, "", ""); err != nil {
		log.Fatalf("Failed to connect nodes: %v", err)
	}
	if err := sess.UpdateNodeData(first, map[string]interface{}{"label": "Simulated idea"}); err != nil {
		log.Fatalf("Failed to update node: %v", err)
	}

	sess.MoveCursor(valueobjects.Position{X: 200, Y: 150})

	applied, err := sess.Undo(ctx)
	if err != nil {
		log.Fatalf("Undo failed: %v", err)
	}
	logger.Info("Undo round-trip complete", zap.Bool("applied", applied))

	if err := sess.SaveNow(ctx); err != nil {
		log.Fatalf("Save failed: %v", err)
	}

	logger.Info("Script complete",
		zap.Int("nodes", doc.NodeCount()),
		zap.Int("edges", doc.EdgeCount()),
	)
}
