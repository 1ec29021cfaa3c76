package log

import "go.uber.org/zap"

var Inst *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Inst = l.Sugar()
}
