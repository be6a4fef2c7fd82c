// Package common provides shared testcontainers for storage integration tests.
package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container wraps a started testcontainers instance with its mapped endpoint.
type Container struct {
	container testcontainers.Container
	host      string
	port      string
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *Container) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}

type sharedContainer struct {
	once      sync.Once
	container *Container
	err       error
}

// start launches req once per process and returns the shared container.
func (s *sharedContainer) start(t *testing.T, name, port string, req testcontainers.ContainerRequest) *Container {
	t.Helper()

	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}

	s.once.Do(func() {
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			s.err = fmt.Errorf("start %s container: %w", name, err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s host: %w", name, err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, port)
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s port: %w", name, err)
			return
		}

		s.container = &Container{container: container, host: host, port: mappedPort.Port()}
	})

	if s.err != nil {
		t.Fatalf("%s container failed: %v", name, s.err)
	}
	return s.container
}

var (
	surrealShared  sharedContainer
	postgresShared sharedContainer
)

// SurrealDBContainer is a running SurrealDB instance.
type SurrealDBContainer struct{ *Container }

// StartSurrealDB starts a shared SurrealDB container for the test run.
func StartSurrealDB(t *testing.T) *SurrealDBContainer {
	t.Helper()
	c := surrealShared.start(t, "SurrealDB", "8000/tcp", testcontainers.ContainerRequest{
		Image:        "surrealdb/surrealdb:v3.0.0",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"start", "--user", "root", "--pass", "root"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("8000/tcp"),
			wait.ForLog("Started web server"),
		).WithDeadline(60 * time.Second),
	})
	return &SurrealDBContainer{c}
}

// Address returns the WebSocket RPC address for SurrealDB.
func (c *SurrealDBContainer) Address() string {
	return fmt.Sprintf("ws://%s:%s/rpc", c.host, c.port)
}

// PostgresContainer is a running Postgres instance.
type PostgresContainer struct{ *Container }

// Postgres credentials used by the test container.
const (
	PostgresUser     = "folio"
	PostgresPassword = "folio"
	PostgresDB       = "folio"
)

// StartPostgres starts a shared Postgres container for the test run.
func StartPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	c := postgresShared.start(t, "Postgres", "5432/tcp", testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     PostgresUser,
			"POSTGRES_PASSWORD": PostgresPassword,
			"POSTGRES_DB":       PostgresDB,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	})
	return &PostgresContainer{c}
}

// URL returns a connection URL for the given database.
func (c *PostgresContainer) URL(database string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		PostgresUser, PostgresPassword, c.host, c.port, database)
}
