package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"taskflow/storage"
)

// storage-init prepares the configured backend (table, schema or
// connectivity check) and can import a browser localStorage export into a
// user's partition.
func main() {
	importFile := flag.String("import", "", "JSON file with exported localStorage entries to import")
	userID := flag.String("user", "", "user id whose partition receives the import")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env")
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	medium, closer, err := storage.Open(ctx, storage.BackendConfig{
		Backend:               os.Getenv("STORAGE_BACKEND"),
		RedisURL:              os.Getenv("REDIS_CONNECTION_STRING"),
		RedisPrefix:           os.Getenv("REDIS_PREFIX"),
		SQLitePath:            os.Getenv("SQLITE_PATH"),
		TableConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TableName:             os.Getenv("KV_TABLE"),
	})
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer closer.Close()

	if *importFile != "" {
		if *userID == "" {
			log.Fatal("-user is required with -import")
		}
		data, err := os.ReadFile(*importFile)
		if err != nil {
			log.Fatalf("read import file: %v", err)
		}
		n, err := importExport(ctx, medium, *userID, data)
		if err != nil {
			log.Fatalf("import: %v", err)
		}
		log.WithFields(log.Fields{"user": *userID, "tasks": n}).Info("import complete")
	}

	log.Info("storage init complete")
}

// importExport loads the task and notification lists of a localStorage dump
// ({"taskflow-tasks": "[...]", ...}) through the codec, so that records are
// repaired the same way the server would repair them, and saves them into
// the user's partition.
func importExport(ctx context.Context, medium storage.Medium, userID string, data []byte) (int, error) {
	var dump map[string]string
	if err := sonic.ConfigStd.Unmarshal(data, &dump); err != nil {
		return 0, err
	}
	src := storage.NewCodec(storage.NewMemoryMedium())
	for _, key := range []string{storage.TasksKey, storage.NotificationsKey} {
		if v, ok := dump[key]; ok {
			if err := src.Medium().Set(ctx, key, v); err != nil {
				return 0, err
			}
		}
	}

	dst := storage.NewCodec(storage.Namespaced(medium, userID))
	tasks, ok := src.LoadTasks(ctx, storage.TasksKey)
	if ok {
		dst.SaveTasks(ctx, storage.TasksKey, tasks)
	}
	if notes, ok := src.LoadNotifications(ctx, storage.NotificationsKey); ok {
		dst.SaveNotifications(ctx, storage.NotificationsKey, notes, 0)
	}
	return len(tasks), nil
}
