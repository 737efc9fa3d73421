package firestore

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// FirestoreClient Webhook配信履歴の永続化に使用するFirestoreクライアントのラッパー
type FirestoreClient struct {
	client *firestore.Client
}

// NewFirestoreClient 新しいFirestoreクライアントを作成
// Cloud Run環境ではデフォルト認証、ローカルでは認証ファイルを使用する
func NewFirestoreClient(ctx context.Context, projectID string) (*FirestoreClient, error) {
	var client *firestore.Client
	var err error

	// Cloud Run環境の検出
	isCloudRun := os.Getenv("K_SERVICE") != ""

	if isCloudRun {
		client, err = firestore.NewClient(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("Firestoreクライアントの初期化に失敗（デフォルト認証）: %w", err)
		}
		log.Printf("✅ Firestore client initialized for project: %s (Cloud Run default auth)", projectID)
		return &FirestoreClient{client: client}, nil
	}

	// ローカル環境では環境変数またはファイルから認証
	credentialsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if credentialsFile == "" {
		credentialsFile = "geoinsight-firestore-key.json"
	}

	if _, fileErr := os.Stat(credentialsFile); fileErr != nil {
		log.Printf("⚠️ Credentials file not found: %s, trying with default authentication", credentialsFile)
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		log.Printf("📄 Using credentials file: %s", credentialsFile)
		client, err = firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credentialsFile))
	}

	if err != nil {
		return nil, fmt.Errorf("Firestoreクライアントの初期化に失敗: %w", err)
	}
	log.Printf("✅ Firestore client initialized for project: %s", projectID)

	return &FirestoreClient{client: client}, nil
}

// Close クライアントを閉じる
func (fc *FirestoreClient) Close() error {
	return fc.client.Close()
}

// GetClient Firestoreクライアントを取得
func (fc *FirestoreClient) GetClient() *firestore.Client {
	return fc.client
}
