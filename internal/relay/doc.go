// Package relay エアー噴射用リレーボードの制御を担う
//
// 撮影位置から除去口・運搬口までのモーター回転時間を速度テーブルから求め、
// その時間だけ待ってからチャンネルを一定時間開く（パルス動作）。
package relay
