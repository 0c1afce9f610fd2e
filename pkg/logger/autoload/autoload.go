// Package autoload initializes the global logger from LOG_* environment
// variables when blank-imported.
package autoload

import (
	configx "github.com/cloudflow/support-agents/pkg/config"
	logx "github.com/cloudflow/support-agents/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
