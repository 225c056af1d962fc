package codec

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/Till-X/xiaozhi-sever-DIY/core/codec"

var (
	logger = otelslog.NewLogger(scopeName)
)
