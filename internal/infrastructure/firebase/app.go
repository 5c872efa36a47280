package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"chatsync/pkg/config"
	"chatsync/pkg/logger"
)

// Clients holds the Google Cloud handles the server needs. Bucket is nil
// when no storage bucket is configured.
type Clients struct {
	App       *firebase.App
	Firestore *firestore.Client
	Bucket    *gcs.BucketHandle
}

func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	var opts []option.ClientOption
	switch {
	case cfg.FirebaseCredentialsJSON != "":
		logger.Info("Using Firebase credentials from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	case cfg.FirebaseCredentialsPath != "":
		logger.Info("Using Firebase credentials from file: %s", cfg.FirebaseCredentialsPath)
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	default:
		logger.Info("Using application default credentials")
	}

	fbConfig := &firebase.Config{
		ProjectID:     cfg.FirebaseProject,
		StorageBucket: cfg.StorageBucket,
	}
	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firestore: %w", err)
	}

	clients := &Clients{App: app, Firestore: fs}

	if cfg.StorageBucket != "" {
		st, err := app.Storage(ctx)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("error initializing storage: %w", err)
		}
		bucket, err := st.DefaultBucket()
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("error opening bucket %s: %w", cfg.StorageBucket, err)
		}
		clients.Bucket = bucket
	}

	return clients, nil
}

func (c *Clients) Close() error {
	return c.Firestore.Close()
}
