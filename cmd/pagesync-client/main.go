// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// A small command line client for poking at a running pagesync server. It
// joins a page's room, prints the protocol traffic it sees and can push a
// single test update. Useful for checking a deployment end to end without
// a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/crdt"
)

var (
	serverURL = flag.String("url", "ws://localhost:8008", "The base URL of the pagesync server")
	pageID    = flag.String("page", "", "The external id of the page to join")
	token     = flag.String("token", "", "An access token obtained from /api/auth/login")
	send      = flag.String("send", "", "Text to push as a single update after the handshake")
	clientID  = flag.Uint64("client-id", 0, "The CRDT client id to write under (defaults to the PID)")
)

func main() {
	flag.Parse()
	if *pageID == "" {
		flag.Usage()
		os.Exit(1)
	}

	url := *serverURL + "/ws/pages/" + *pageID + "/"
	if *token != "" {
		url += "?access_token=" + *token
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect")
	}
	defer conn.Close(websocket.StatusNormalClosure, "") // nolint: errcheck
	logrus.Infof("Connected to %s", url)

	// Answer the server's step 1 with our own so it sends us the document,
	// then keep printing whatever arrives.
	doc := crdt.NewDoc()
	if err = conn.Write(ctx, websocket.MessageBinary, crdt.EncodeSyncStep1(doc.EncodeStateVector())); err != nil {
		logrus.WithError(err).Fatal("Failed to send sync step 1")
	}

	if *send != "" {
		id := *clientID
		if id == 0 {
			id = uint64(os.Getpid())
		}
		update := crdt.NewUpdate(id, 0, []byte(*send))
		if err = conn.Write(ctx, websocket.MessageBinary, crdt.EncodeSyncUpdate(update)); err != nil {
			logrus.WithError(err).Fatal("Failed to send update")
		}
		logrus.Infof("Sent %d byte update as client %d", len(update), id)
	}

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			logrus.WithError(err).Fatal("Connection closed")
		}
		switch msgType {
		case websocket.MessageText:
			fmt.Printf("control: %s\n", data)
		case websocket.MessageBinary:
			printFrame(doc, data)
		}
	}
}

func printFrame(doc *crdt.Doc, frame []byte) {
	msg, err := crdt.DecodeMessage(frame)
	if err != nil {
		fmt.Printf("undecodable frame (%d bytes): %v\n", len(frame), err)
		return
	}
	switch {
	case msg.Type == crdt.MsgAwareness:
		fmt.Printf("awareness: %d bytes\n", len(msg.Payload))
	case msg.Step == crdt.SyncStep1:
		fmt.Printf("sync step 1: state vector of %d bytes\n", len(msg.Payload))
	case msg.Step == crdt.SyncStep2, msg.Step == crdt.SyncUpdate:
		if err := doc.ApplyUpdate(msg.Payload); err != nil {
			fmt.Printf("sync step %d: undecodable update: %v\n", msg.Step, err)
			return
		}
		fmt.Printf("sync step %d: %d bytes, document now holds %d ops\n",
			msg.Step, len(msg.Payload), doc.Ops())
	}
}
