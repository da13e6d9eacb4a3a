// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package collabapi_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/collabapi"
	"github.com/hyperclast/pagesync/collabapi/crdt"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/test"
	"github.com/hyperclast/pagesync/test/testrig"
	"github.com/hyperclast/pagesync/workspaceapi"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

// cluster wires two collab workers over one embedded JetStream and one
// shared workspace database, the way two pagesync processes behind a load
// balancer would run.
type cluster struct {
	db        storage.Database
	authn     *auth.Authenticator
	workerA   *httptest.Server
	workerB   *httptest.Server
	producerA *producers.ControlEvents

	admin *api.User
	page  *api.Page
}

func newCluster(t *testing.T) (*cluster, func()) {
	t.Helper()

	cfg, processCtx, natsInstance, closeRig := testrig.CreateConfigWithNATS(t, test.DBTypeSQLite)
	cfg.CollabAPI.Backplane.Type = config.BackplaneJetStream

	cm := sqlutil.NewConnectionManager(processCtx, config.DatabaseOptions{})
	caches := caching.NewRistrettoCache(8*1024*1024, time.Hour, caching.DisableMetrics)
	db, authn := workspaceapi.NewWorkspaceStorage(cfg, cm, caches)

	routersA := httputil.NewRouters()
	producerA := collabapi.AddPublicRoutes(processCtx, routersA, cfg, cm, natsInstance, db, authn)
	workerA := httptest.NewServer(routersA.Collab)

	// Worker B is the same config with its own identity and collab
	// database, sharing the NATS server and the workspace database.
	cfgB := *cfg
	cfgB.Wire()
	cfgB.Global.InstanceName = uuid.NewString()
	collabStrB, closeCollabB := test.PrepareDBConnectionString(t, test.DBTypeSQLite)
	cfgB.CollabAPI.Database.ConnectionString = collabStrB

	routersB := httputil.NewRouters()
	collabapi.AddPublicRoutes(processCtx, routersB, &cfgB, cm, natsInstance, db, authn)
	workerB := httptest.NewServer(routersB.Collab)

	ctx := context.Background()
	admin, err := db.CreateUser(ctx, "admin@test.local", "unusable-hash", "Admin")
	require.NoError(t, err)
	org, err := db.CreateOrg(ctx, "Test Org", admin.ID)
	require.NoError(t, err)
	project, err := db.CreateProject(ctx, org.ID, "Test Project", admin.ID, false)
	require.NoError(t, err)
	page, err := db.CreatePage(ctx, project.ID, admin.ID, "Test Page")
	require.NoError(t, err)

	c := &cluster{
		db:        db,
		authn:     authn,
		workerA:   workerA,
		workerB:   workerB,
		producerA: producerA,
		admin:     admin,
		page:      page,
	}
	return c, func() {
		workerA.Close()
		workerB.Close()
		closeRig()
		closeCollabB()
	}
}

func (c *cluster) newUser(t *testing.T, email string, role api.EditorRole) *api.User {
	t.Helper()
	user, err := c.db.CreateUser(context.Background(), email, "unusable-hash", email)
	require.NoError(t, err)
	require.NoError(t, c.db.UpsertPageEditor(context.Background(), c.page.ID, user.ID, role))
	return user
}

func (c *cluster) dial(t *testing.T, server *httptest.Server, user *api.User) *websocket.Conn {
	t.Helper()
	token, err := c.authn.IssueToken(user.ID, time.Now())
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") +
		"/ws/pages/" + c.page.ExternalID + "/?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.BinaryMessage {
			return data
		}
	}
}

func readControl(t *testing.T, conn *websocket.Conn) types.ControlMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.TextMessage {
			var msg types.ControlMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			return msg
		}
	}
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, code), "expected close %d, got %v", code, err)
			return
		}
	}
}

func TestFramesFanOutAcrossWorkers(t *testing.T) {
	c, closeCluster := newCluster(t)
	defer closeCluster()

	editor := c.newUser(t, "editor@test.local", api.EditorRoleEditor)
	viewer := c.newUser(t, "viewer@test.local", api.EditorRoleViewer)

	editorConn := c.dial(t, c.workerA, editor)
	defer editorConn.Close()
	readBinary(t, editorConn) // initial step 1

	viewerConn := c.dial(t, c.workerB, viewer)
	defer viewerConn.Close()
	readBinary(t, viewerConn)

	update := crdt.NewUpdate(77, 0, []byte("hello"))
	frame := crdt.EncodeSyncUpdate(update)
	require.NoError(t, editorConn.WriteMessage(websocket.BinaryMessage, frame))

	// The frame crosses the JetStream backplane before worker B can
	// broadcast it, so delivery is asynchronous but verbatim.
	got := readBinary(t, viewerConn)
	assert.Equal(t, frame, got)
}

func TestRemoteWorkerCatchesUpNewJoiners(t *testing.T) {
	c, closeCluster := newCluster(t)
	defer closeCluster()

	editor := c.newUser(t, "editor@test.local", api.EditorRoleEditor)
	viewer := c.newUser(t, "viewer@test.local", api.EditorRoleViewer)

	editorConn := c.dial(t, c.workerA, editor)
	defer editorConn.Close()
	readBinary(t, editorConn)

	// Worker B has a live room replica from the start, so the relayed
	// update lands in it even with no sessions attached yet.
	probe := c.dial(t, c.workerB, viewer)
	readBinary(t, probe)

	update := crdt.NewUpdate(77, 0, []byte("hello"))
	require.NoError(t, editorConn.WriteMessage(websocket.BinaryMessage, crdt.EncodeSyncUpdate(update)))
	readBinary(t, probe)
	probe.Close()

	// A joiner on worker B answers the handshake from the replica: its
	// step 2 must already contain the editor's update.
	late := c.dial(t, c.workerB, viewer)
	defer late.Close()
	readBinary(t, late) // server step 1

	sv := crdt.NewDoc().EncodeStateVector()
	require.NoError(t, late.WriteMessage(websocket.BinaryMessage, crdt.EncodeSyncStep1(sv)))

	deadline := time.Now().Add(5 * time.Second)
	for {
		frame := readBinary(t, late)
		msg, err := crdt.DecodeMessage(frame)
		require.NoError(t, err)
		if msg.Step == crdt.SyncStep2 {
			doc := crdt.NewDoc()
			require.NoError(t, doc.ApplyUpdate(msg.Payload))
			if !doc.IsEmpty() {
				assert.Equal(t, 1, doc.Ops())
				return
			}
		}
		require.True(t, time.Now().Before(deadline), "no step 2 with content before deadline")
	}
}

func TestControlEventsReachRemoteWorkers(t *testing.T) {
	c, closeCluster := newCluster(t)
	defer closeCluster()

	viewer := c.newUser(t, "viewer@test.local", api.EditorRoleViewer)
	viewerConn := c.dial(t, c.workerB, viewer)
	defer viewerConn.Close()
	readBinary(t, viewerConn)

	c.producerA.LinksUpdated(context.Background(), c.page.ExternalID)

	msg := readControl(t, viewerConn)
	assert.Equal(t, types.ControlLinksUpdated, msg.Code)
	assert.Equal(t, c.page.ExternalID, msg.Page)
}

func TestRevocationRaisedOnOneWorkerKicksSessionOnAnother(t *testing.T) {
	c, closeCluster := newCluster(t)
	defer closeCluster()

	viewer := c.newUser(t, "viewer@test.local", api.EditorRoleViewer)
	viewerConn := c.dial(t, c.workerB, viewer)
	defer viewerConn.Close()
	readBinary(t, viewerConn)

	// Revoke in storage first; the session re-checks grants when the
	// control event arrives rather than trusting it.
	removed, err := c.db.RemovePageEditor(context.Background(), c.page.ID, viewer.ID)
	require.NoError(t, err)
	require.True(t, removed)
	c.producerA.AccessRevoked(context.Background(), c.page.ExternalID, viewer.ID)

	expectClose(t, viewerConn, types.CloseAccessRevoked)
}
