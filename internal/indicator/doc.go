// Package indicator 判定結果を表示する信号灯（USB接続）の制御を担う
package indicator
