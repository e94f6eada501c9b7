package pixelplace

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	Key0 int = iota
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyE
	KeyC
	KeyLeftBracket
	KeyRightBracket
	KeyEscape
	KeyRight
	KeyLeft
	KeyDown
	KeyUp
	KeyMinus
	KeyEqual
	KeyKPPlus
	KeyKPMinus
	KeyShift
	KeyControl
	MouseButtonLeft
	MouseButtonRight
	MouseButtonMiddle

	keyCount
)

type InputModule struct{}

type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64
	// ScrollY sums the wheel ticks since the previous frame.
	ScrollY float64

	WindowWidth, WindowHeight           int
	FramebufferWidth, FramebufferHeight int

	scroll   float64
	hasMouse bool
}

func (mod InputModule) Install(app *App, cmd *Commands) {
	input := &Input{}
	cmd.AddResources(input)

	if r, ok := app.Resource((*WindowState)(nil)); ok {
		w := r.(*WindowState).windowGlfw
		w.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
			input.scroll += yoff
		})
	}

	app.UseSystem(
		System(inputSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

// set updates the edge flags of one key or button.
func (input *Input) set(key int, down bool) {
	input.JustPressed[key] = down && !input.Pressed[key]
	input.JustReleased[key] = !down && input.Pressed[key]
	input.Pressed[key] = down
}

// moveMouse records the cursor position and the delta since the previous frame.
func (input *Input) moveMouse(x, y float64) {
	if input.hasMouse {
		input.MouseDeltaX = x - input.MouseX
		input.MouseDeltaY = y - input.MouseY
	}
	input.MouseX, input.MouseY = x, y
	input.hasMouse = true
}

func (input *Input) takeScroll() {
	input.ScrollY = input.scroll
	input.scroll = 0
}

func inputSystem(s *WindowState, input *Input) {
	glfw.PollEvents()

	for key, glfwKey := range keyToGlfw {
		input.set(key, s.windowGlfw.GetKey(glfwKey) == glfw.Press)
	}
	for btn, glfwBtn := range buttonToGlfw {
		input.set(btn, s.windowGlfw.GetMouseButton(glfwBtn) == glfw.Press)
	}

	input.moveMouse(s.windowGlfw.GetCursorPos())
	input.takeScroll()

	input.WindowWidth, input.WindowHeight = s.windowGlfw.GetSize()
	input.FramebufferWidth, input.FramebufferHeight = s.windowGlfw.GetFramebufferSize()
	s.WindowWidth, s.WindowHeight = input.WindowWidth, input.WindowHeight
}

var keyToGlfw = map[int]glfw.Key{
	Key0:            glfw.Key0,
	Key1:            glfw.Key1,
	Key2:            glfw.Key2,
	Key3:            glfw.Key3,
	Key4:            glfw.Key4,
	Key5:            glfw.Key5,
	Key6:            glfw.Key6,
	Key7:            glfw.Key7,
	Key8:            glfw.Key8,
	Key9:            glfw.Key9,
	KeyE:            glfw.KeyE,
	KeyC:            glfw.KeyC,
	KeyLeftBracket:  glfw.KeyLeftBracket,
	KeyRightBracket: glfw.KeyRightBracket,
	KeyEscape:       glfw.KeyEscape,
	KeyRight:        glfw.KeyRight,
	KeyLeft:         glfw.KeyLeft,
	KeyDown:         glfw.KeyDown,
	KeyUp:           glfw.KeyUp,
	KeyMinus:        glfw.KeyMinus,
	KeyEqual:        glfw.KeyEqual,
	KeyKPPlus:       glfw.KeyKPAdd,
	KeyKPMinus:      glfw.KeyKPSubtract,
	KeyShift:        glfw.KeyLeftShift,
	KeyControl:      glfw.KeyLeftControl,
}

var buttonToGlfw = map[int]glfw.MouseButton{
	MouseButtonLeft:   glfw.MouseButtonLeft,
	MouseButtonRight:  glfw.MouseButtonRight,
	MouseButtonMiddle: glfw.MouseButtonMiddle,
}
