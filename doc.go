// Package keijiban はステートレスなトークン認証を備えた掲示板バックエンド。
// エントリーポイントはcmd/keijiban、実装はinternal以下の各パッケージにある。
package keijiban
