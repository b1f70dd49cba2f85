package authz

import (
	"log/slog"

	console "github.com/network-plane/planeconsole"
)

// Middleware refuses to mount guarded commands the Authorizer rejects. A
// rejected invocation prints the validation message and resolves as error.
func Middleware(a *Authorizer) console.Middleware {
	return func(props console.ExecutionProps, next console.MountFunc) {
		def := props.Command.Definition
		if !a.Guards(def) || props.Status().Terminal() {
			next(props)
			return
		}

		v, err := a.ValidateCommand(props.Context, def)
		if err != nil {
			props.Logger.Warn("authorization check failed", slog.String("error", err.Error()))
			props.Output.Error("authorization check failed: " + err.Error())
			_ = props.SetStatus(console.StatusError)
			return
		}
		if !v.Valid {
			props.Logger.Info("command not authorized", slog.String("reason", v.Message))
			props.Output.Error(v.Message)
			_ = props.SetStatus(console.StatusError)
			return
		}
		next(props)
	}
}
