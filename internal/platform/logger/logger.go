package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New はJSON構造化ログ用の zap ロガーを生成する。
// mode=dev の場合は開発向けの見やすい出力に切り替える。
func New(mode string) (*zap.Logger, error) {
	if mode == "dev" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Must はロガー生成に失敗したら panic するヘルパー。
func Must(l *zap.Logger, err error) *zap.Logger {
	if err != nil {
		panic(err)
	}
	return l
}
