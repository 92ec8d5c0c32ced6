// Package server は、検査ラインの操作APIとイベント配信を提供します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - 判定の登録、運転の開始・停止、速度設定などの操作API
//   - カメラの状態と最新フレーム（JPEG）の配信
//   - WebSocketによる判定イベントと運転状態の配信
//
// 仕様:
//   - ルーティングはginを使用
//   - WebSocketはgorilla/websocketを使用
//   - ハンドラーはブロックしない。機器の操作はinspectionパッケージがディスパッチャーに投入する
//   - 送信が追いつかないWebSocketクライアントは切断する
package server
