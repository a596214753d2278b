package database

import (
	"strings"
	"testing"
)

// 埋め込みマイグレーションがup/downのペアで揃っていることを検証
func TestMigrations_UpDownPairs(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("マイグレーションディレクトリの読み込みに失敗: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("マイグレーションファイルが見つかりません")
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}

	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if !names[down] {
				t.Errorf("downマイグレーションがありません: %s", down)
			}
		}
	}
}

// commentsの外部キーがCASCADE削除になっていることを検証。
// 論理削除済みの投稿や親コメントをパージする際、配下のコメントが
// 残っていても外部キー違反でDELETEが失敗しないことを保証する。
func TestMigrations_CommentsForeignKeysCascade(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/000003_create_comments.up.sql")
	if err != nil {
		t.Fatalf("マイグレーションファイルの読み込みに失敗: %v", err)
	}
	ddl := string(data)

	if !strings.Contains(ddl, "REFERENCES posts(id) ON DELETE CASCADE") {
		t.Error("comments.post_idの外部キーにON DELETE CASCADEがありません")
	}
	if !strings.Contains(ddl, "REFERENCES comments(id) ON DELETE CASCADE") {
		t.Error("comments.parent_idの外部キーにON DELETE CASCADEがありません")
	}
}
