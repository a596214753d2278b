package auth

import "github.com/hitoshi/keijiban/internal/model"

// Authorize は所有者ベースの認可判定を行う。
// identityがnil（未認証）の場合はUNAUTHENTICATEDエラーを返す。
// identityのユーザーIDがリソース所有者と一致しない場合はFORBIDDENエラーを返す。
// 一致する場合のみnilを返す。
//
// 呼び出し側は必ずリソースの存在確認（not found判定）を先に行うこと。
// 存在しないリソースと権限不足は区別可能な結果として呼び出し元に返す必要がある。
func Authorize(identity *model.Identity, resourceOwnerID int64) error {
	if identity == nil {
		return model.NewUnauthenticatedError()
	}
	if identity.UserID != resourceOwnerID {
		return model.NewForbiddenError()
	}
	return nil
}
