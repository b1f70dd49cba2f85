package console

// Validate runs the per-argument validators of the arguments present in cmd,
// in declaration order, then the whole-command validator. The first failure
// is returned as a *ValidationFailedError.
func Validate(cmd Command) error {
	def := cmd.Definition
	if def == nil {
		return &ValidationFailedError{Message: "command has no definition"}
	}
	for _, arg := range def.Args {
		if arg.Validate == nil || !cmd.Args.Has(arg.Name) {
			continue
		}
		if err := arg.Validate(cmd.Args.Values(arg.Name)); err != nil {
			return &ValidationFailedError{Command: def.Name, Argument: arg.Name, Message: err.Error()}
		}
	}
	if def.Validate != nil {
		if err := def.Validate(cmd); err != nil {
			return &ValidationFailedError{Command: def.Name, Message: err.Error()}
		}
	}
	return nil
}
