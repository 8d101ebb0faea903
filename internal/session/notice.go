package session

import "encoding/gob"

// Notice categories, also used as css classes by the templates.
const (
	CategorySuccess = "success"
	CategoryInfo    = "info"
	CategoryWarning = "warning"
	CategoryDanger  = "danger"
)

const noticesKey = "_notices"

// Notice is a one-time message shown on the next rendered page, then discarded.
type Notice struct {
	Category string
	Message  string
}

func Success(message string) Notice {
	return Notice{Category: CategorySuccess, Message: message}
}

func Info(message string) Notice {
	return Notice{Category: CategoryInfo, Message: message}
}

func Warning(message string) Notice {
	return Notice{Category: CategoryWarning, Message: message}
}

func Danger(message string) Notice {
	return Notice{Category: CategoryDanger, Message: message}
}

func init() {
	// session values are gob encoded by both stores
	gob.Register(Notice{})
}
