// Package opencv gocv（OpenCV）によるカメラドライバーと動画ライター
//
// camera パッケージのDevice、VideoWriterを実装する。ビルドにはOpenCV 4が必要。
package opencv
