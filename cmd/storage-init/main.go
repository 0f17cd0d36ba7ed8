// Command storage-init provisions the tables, queue, blob container and
// PostgreSQL schema the API expects. Existing resources are left alone.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"weekplan/blob"
	"weekplan/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx := context.Background()
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	dsn := os.Getenv("DATABASE_URL")
	if connStr == "" && dsn == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING and DATABASE_URL")
	}

	if dsn != "" {
		pg, err := storage.OpenPostgres(ctx, dsn)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		err = pg.Migrate(ctx)
		pg.Close()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Info("postgres schema ready")
	}

	if connStr != "" {
		if err := createTables(ctx, connStr, []string{
			envOr("TASKS_TABLE", "tasks"),
			envOr("NOTES_TABLE", "notes"),
			envOr("SUMMARIES_TABLE", "summaries"),
			envOr("WEEK_SETTINGS_TABLE", "weeksettings"),
		}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		if err := createQueues(ctx, connStr, []string{os.Getenv("EVENTS_QUEUE")}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
		if err := blob.CreateContainer(ctx, connStr, envOr("IMAGES_CONTAINER", "images")); err != nil {
			log.Fatalf("create container: %v", err)
		}
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
		log.WithField("table", name).Debug("table ready")
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
		log.WithField("queue", name).Debug("queue ready")
	}
	return nil
}
