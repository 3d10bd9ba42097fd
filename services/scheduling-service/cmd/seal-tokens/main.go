// Command seal-tokens encrypts every plaintext Google refresh token in the
// accounts collection with ENCRYPTION_KEY. It is safe to run repeatedly.
package main

import (
	"context"
	"os"
	"time"

	"github.com/md-rashed-zaman/calbook/libs/config"
	"github.com/md-rashed-zaman/calbook/libs/mongox"
	"github.com/md-rashed-zaman/calbook/libs/runtime"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/credentials"
)

func main() {
	logger := runtime.NewLogger("seal-tokens")
	if err := config.Load(config.String("CONFIG_FILE", "")); err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	key, err := config.RequiredString("ENCRYPTION_KEY")
	if err != nil {
		logger.Error("missing key", "err", err)
		os.Exit(1)
	}
	sealer, err := credentials.NewSealer(key)
	if err != nil {
		logger.Error("sealer init failed", "err", err)
		os.Exit(1)
	}
	uri, err := config.RequiredString("MONGODB_URI")
	if err != nil {
		logger.Error("missing mongo uri", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := mongox.Open(ctx, uri, config.String("MONGODB_DATABASE", "calbook"))
	if err != nil {
		logger.Error("mongo connection failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close(context.Background()) }()

	n, err := credentials.NewStore(client.DB, sealer).SealPlaintext(ctx)
	if err != nil {
		logger.Error("sealing failed", "sealed", n, "err", err)
		os.Exit(1)
	}
	logger.Info("refresh tokens sealed", "sealed", n)
}
