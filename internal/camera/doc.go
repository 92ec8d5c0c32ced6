// Package camera 検査ラインのカメラ群の録画と最新フレームの共有を担う
//
// # 責務
// - シリアル番号による物理カメラと設置位置（Role）の対応付け
// - カメラごとのキャプチャループと動画ファイルへの録画
// - 最新フレームの安全な共有（書き込み・読み出しともにコピー）
// - フリート全体の開始・停止
//
// # 仕様
// - Fleet: 検出と割り当て、一括開始・停止。一部のカメラが見つからなくても動作を続ける
// - Session: 1台分のキャプチャループ。Startはすぐ戻り、Stopは何度呼んでもよい
// - LinuxDiscovery: sysfsからシリアル番号を読み、ドライバーでの実際のオープンはDeviceOpenerに任せる
// - 取得エラーやタイムアウトはログに残してループを続ける。ErrDeviceFatalのときだけ終了する
// - 動画の書き込みは別ゴルーチンで行い、ディスクが遅くても取得を止めない
//
// # 前提要件
//   - v4l-utils: sysfsから名前が取れないときのカメラ名取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
