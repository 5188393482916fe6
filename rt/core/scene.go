package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Mesh is an indexed triangle list in node-local space.
type Mesh struct {
	Positions     []mgl32.Vec3
	Indices       []uint32
	MaterialIndex int
}

// Node is one element of the scene graph. A node may carry a mesh, a light
// or a camera, and its children inherit its transform.
type Node struct {
	Name      string
	Transform *Transform
	Visible   bool

	Mesh   *Mesh
	Light  *Light
	Camera *Camera

	Children []*Node
	parent   *Node
}

func NewNode(name string) *Node {
	return &Node{Name: name, Transform: NewTransform(), Visible: true}
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Add(children ...*Node) {
	for _, c := range children {
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = n
		n.Children = append(n.Children, c)
	}
}

func (n *Node) Remove(child *Node) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Scene is the authoring-side description handed to a SceneBuilder and the
// light preprocessor.
type Scene struct {
	Root      *Node
	Materials []Material

	lightRevision uint64
}

func NewScene() *Scene {
	return &Scene{Root: NewNode("root")}
}

// Traverse visits every visible node depth first with its world matrix.
// Children of an invisible node are skipped.
func (s *Scene) Traverse(fn func(n *Node, world mgl32.Mat4)) {
	var walk func(n *Node, parent mgl32.Mat4)
	walk = func(n *Node, parent mgl32.Mat4) {
		if !n.Visible {
			return
		}
		world := parent.Mul4(n.Transform.Matrix())
		fn(n, world)
		for _, c := range n.Children {
			walk(c, world)
		}
	}
	walk(s.Root, mgl32.Ident4())
}

// LightRevision changes whenever the light set or a light parameter changes.
func (s *Scene) LightRevision() uint64 { return s.lightRevision }

// TouchLights marks the light set as changed.
func (s *Scene) TouchLights() { s.lightRevision++ }

// AddLight attaches l under the root at transform t.
func (s *Scene) AddLight(l *Light, t *Transform) *Node {
	n := NewNode(l.Type.String() + "-light")
	if t != nil {
		n.Transform = t
	}
	n.Light = l
	s.Root.Add(n)
	s.TouchLights()
	return n
}

// FindLight returns the node carrying the light with id, including hidden
// ones.
func (s *Scene) FindLight(id uuid.UUID) *Node {
	var found *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if found != nil {
			return
		}
		if n.Light != nil && n.Light.ID == id {
			found = n
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s.Root)
	return found
}

// RemoveLight detaches the light with id. A node that carries something else
// keeps its place and only loses the light.
func (s *Scene) RemoveLight(id uuid.UUID) bool {
	n := s.FindLight(id)
	if n == nil {
		return false
	}
	n.Light = nil
	if n.Mesh == nil && n.Camera == nil && len(n.Children) == 0 && n.parent != nil {
		n.parent.Remove(n)
	}
	s.TouchLights()
	return true
}

// ClearLights removes every light and returns how many were removed.
func (s *Scene) ClearLights() int {
	var ids []uuid.UUID
	for _, l := range s.allLights() {
		ids = append(ids, l.ID)
	}
	for _, id := range ids {
		s.RemoveLight(id)
	}
	return len(ids)
}

// Lights returns every light in the scene, visible or not, in graph order.
func (s *Scene) Lights() []*Light {
	return s.allLights()
}

func (s *Scene) allLights() []*Light {
	var out []*Light
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Light != nil {
			out = append(out, n.Light)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s.Root)
	return out
}

// Cameras returns the visible cameras in traversal order.
func (s *Scene) Cameras() []*Camera {
	var out []*Camera
	s.Traverse(func(n *Node, _ mgl32.Mat4) {
		if n.Camera != nil {
			out = append(out, n.Camera)
		}
	})
	return out
}
