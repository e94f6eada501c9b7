package pixelplace

type Commands struct {
	app *App
}

func (cmd *Commands) ChangeState(newState State) *Commands {
	cmd.app.changeState(newState)
	return cmd
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

// Quit moves a stateful app to its final state and stops a stateless one after
// the current frame.
func (cmd *Commands) Quit() {
	cmd.app.quit()
}

func (cmd *Commands) Logger() Logger {
	return cmd.app.Logger()
}
