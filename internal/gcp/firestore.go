package gcp

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
)

// EmulatorProjectID is used against the Firestore emulator when no project
// is configured.
const EmulatorProjectID = "explorationjobs-local"

// NewFirestoreClient connects to databaseID in projectID, or to the default
// database when databaseID is empty. When FIRESTORE_EMULATOR_HOST is set the
// client talks to the emulator and the project may be left empty.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	projectID, databaseID, err := firestoreTarget(projectID, databaseID, os.Getenv("FIRESTORE_EMULATOR_HOST") != "")
	if err != nil {
		return nil, err
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client for %s/%s: %w", projectID, databaseID, err)
	}
	return client, nil
}

func firestoreTarget(projectID, databaseID string, emulator bool) (string, string, error) {
	if projectID == "" {
		if !emulator {
			return "", "", fmt.Errorf("projectID must be provided to create a firestore client")
		}
		projectID = EmulatorProjectID
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	return projectID, databaseID, nil
}
