package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoImage is the server image integration tests run against.
const MongoImage = "mongo:7"

const (
	mongoPort  = "27017/tcp"
	mongoReady = "Waiting for connections"
	replicaSet = "rs0"
)

// StartMongo starts a standalone MongoDB server and returns its connection URL.
func StartMongo(t *testing.T) string {
	t.Helper()
	container := startGeneric(t, testcontainers.ContainerRequest{
		Image:        MongoImage,
		ExposedPorts: []string{mongoPort},
		WaitingFor:   readyLog(mongoReady),
	})
	return "mongodb://" + mongoEndpoint(t, container)
}

// mongoEndpoint returns the host:port the server port is published on.
func mongoEndpoint(t *testing.T, container testcontainers.Container) string {
	t.Helper()
	endpoint, err := container.PortEndpoint(context.Background(), mongoPort, "")
	if err != nil {
		t.Fatalf("resolve mongodb endpoint: %v", err)
	}
	return endpoint
}

// StartMongoReplicaSet starts a single-node replica set, which multi-document transactions
// require, and returns a direct connection URL once the node is primary.
func StartMongoReplicaSet(t *testing.T) string {
	t.Helper()
	container := startGeneric(t, testcontainers.ContainerRequest{
		Image:        MongoImage,
		ExposedPorts: []string{mongoPort},
		Cmd:          []string{"--replSet", replicaSet, "--bind_ip_all"},
		WaitingFor:   readyLog(mongoReady),
	})

	code, _, err := container.Exec(context.Background(), []string{
		"mongosh", "--quiet", "--eval",
		"rs.initiate({_id: '" + replicaSet + "', members: [{_id: 0, host: 'localhost:27017'}]})",
	})
	if err != nil || code != 0 {
		t.Fatalf("initiate replica set: exit code %d, %v", code, err)
	}

	url := "mongodb://" + mongoEndpoint(t, container) + "/?directConnection=true"
	waitForPrimary(t, url, 30*time.Second)
	return url
}

func waitForPrimary(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		t.Fatalf("connect to replica set: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		var hello struct {
			Primary bool `bson:"isWritablePrimary"`
		}
		err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello)
		if err == nil && hello.Primary {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("replica set never elected a primary: %v", err)
		case <-ticker.C:
		}
	}
}
