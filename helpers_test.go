package corepay

import "github.com/agentpay/corepay/pkg/log"

func testLogger() log.Logger {
	return log.New("test")
}
