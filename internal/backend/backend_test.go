package backend

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/physync/internal/native"
	"github.com/roach88/physync/internal/native/fake"
	"github.com/roach88/physync/internal/scene"
	"github.com/roach88/physync/internal/xform"
)

type fixture struct {
	phys  *fake.Physics
	scene *fake.Scene
	env   *Env
	cache *scene.TransformCache
}

func setup(t *testing.T) *fixture {
	t.Helper()
	p := fake.New()
	ns, err := p.CreateScene(native.SceneDesc{Gravity: mgl32.Vec3{0, -981, 0}})
	require.NoError(t, err)
	mat, err := p.CreateMaterial(0.5, 0.5, 0.5)
	require.NoError(t, err)
	return &fixture{
		phys:  p,
		scene: ns.(*fake.Scene),
		env: &Env{
			Physics:         p,
			Scene:           ns,
			DefaultMaterial: mat,
			DefaultDensity:  0.001,
			Cooker:          native.NoCooker{},
		},
		cache: scene.NewTransformCache(),
	}
}

// tick runs the per-actor passes of one sync window.
func (f *fixture) tick(dt float32, actors ...*Actor) {
	for _, a := range actors {
		a.MarkDirtyShapes(f.env, f.cache)
		a.RebuildDirtyShapes(f.env, f.cache)
		a.UpdateFilters()
		a.Sync(f.env, dt, f.cache)
	}
	f.cache.Clear()
}

func (f *fixture) build(t *testing.T, node *scene.Node) *Actor {
	t.Helper()
	a := New(node, 1)
	require.NoError(t, a.Init(f.env))
	return a
}

func boxNode(kind scene.Kind, name string) *scene.Node {
	n := scene.NewNodeWithID(kind, name, name)
	n.AddShape(scene.NewBox(mgl32.Vec3{100, 100, 100}))
	return n
}

func fakeActor(a *Actor) *fake.Actor {
	return a.Native().(*fake.Actor)
}

func TestInit_CreatesActorWithoutShapes(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "box")

	a := f.build(t, node)

	assert.False(t, a.Null())
	assert.True(t, a.ShapesDirty(), "shapes are built by the first rebuild")
	assert.Equal(t, 0, f.phys.Stats().ShapesCreated)
	assert.Same(t, node, a.Native().UserData())
	assert.Len(t, f.scene.Actors(), 1)
}

func TestRebuildDirtyShapes_Idempotent(t *testing.T) {
	f := setup(t)
	a := f.build(t, boxNode(scene.KindDynamic, "box"))

	f.tick(1.0/60, a)
	stats := f.phys.Stats()
	assert.Equal(t, 1, stats.ShapesCreated)
	assert.Equal(t, 0, stats.ShapesReleased)

	f.tick(1.0/60, a)
	f.tick(1.0/60, a)
	stats = f.phys.Stats()
	assert.Equal(t, 1, stats.ShapesCreated, "no rebuild without a dirty-causing change")
	assert.Equal(t, 0, stats.ShapesReleased)
	assert.Equal(t, 0, stats.Violations)
}

func TestMarkDirtyShapes_Causes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *scene.Node)
	}{
		{"parameter change", func(n *scene.Node) { n.Shapes()[0].SetExtents(mgl32.Vec3{10, 10, 10}) }},
		{"pose drift", func(n *scene.Node) { n.Shapes()[0].SetPosition(mgl32.Vec3{5, 0, 0}) }},
		{"node scale", func(n *scene.Node) { n.SetScale(mgl32.Vec3{2, 2, 2}) }},
		{"shape added", func(n *scene.Node) { n.AddShape(scene.NewSphere(10)) }},
		{"material", func(n *scene.Node) { n.SetMaterial(&scene.Material{StaticFriction: 1}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			node := boxNode(scene.KindStatic, "wall")
			a := f.build(t, node)
			f.tick(0, a)
			require.Equal(t, 1, f.phys.Stats().ShapesCreated)

			tt.mutate(node)
			f.tick(0, a)

			stats := f.phys.Stats()
			assert.Equal(t, 1, stats.ShapesReleased)
			assert.Equal(t, len(node.Shapes())+1, stats.ShapesCreated)
			assert.False(t, a.ShapesDirty())
		})
	}
}

func TestRebuild_ShapeLocalPoseUsesNodeScale(t *testing.T) {
	f := setup(t)
	node := scene.NewNodeWithID(scene.KindStatic, "s", "s")
	node.SetScale(mgl32.Vec3{2, 3, 4})
	sh := scene.NewSphere(10)
	sh.SetPosition(mgl32.Vec3{1, 1, 1})
	node.AddShape(sh)

	a := f.build(t, node)
	f.tick(0, a)

	sh0 := fakeActor(a).Shapes()[0]
	assert.Equal(t, mgl32.Vec3{2, 3, 4}, sh0.LocalPose().Position)
	assert.Equal(t, float32(10), sh0.Geometry().Radius)
}

type readyCooker struct{ ready bool }

func (c *readyCooker) Cook(req native.CookRequest) (native.Geometry, bool, error) {
	if !c.ready {
		return native.Geometry{}, false, nil
	}
	return native.Geometry{Type: req.Type, Scale: req.Scale, Cooked: req.Source}, true, nil
}

func TestRebuild_RetriesPendingGeometry(t *testing.T) {
	f := setup(t)
	cooker := &readyCooker{}
	f.env.Cooker = cooker
	node := scene.NewNodeWithID(scene.KindStatic, "level", "level")
	node.AddShape(scene.NewTriangleMesh("level.mesh"))

	a := f.build(t, node)
	f.tick(0, a)
	assert.Equal(t, 0, a.ShapeCount())

	cooker.ready = true
	f.tick(0, a)
	assert.Equal(t, 1, a.ShapeCount())

	f.tick(0, a)
	assert.Equal(t, 1, f.phys.Stats().ShapesCreated, "stable once available")
}

func TestRebuild_PendingGeometryDoesNotChurnShapes(t *testing.T) {
	f := setup(t)
	cooker := &readyCooker{}
	f.env.Cooker = cooker
	node := boxNode(scene.KindStatic, "level")
	node.AddShape(scene.NewTriangleMesh("level.mesh"))

	a := f.build(t, node)
	for i := 0; i < 5; i++ {
		f.tick(0, a)
	}

	stats := f.phys.Stats()
	assert.Equal(t, 1, stats.ShapesCreated, "the box is built once while the mesh is pending")
	assert.Equal(t, 0, stats.ShapesReleased)
	assert.Equal(t, 1, a.ShapeCount())

	cooker.ready = true
	f.tick(0, a)
	f.tick(0, a)

	stats = f.phys.Stats()
	assert.Equal(t, 3, stats.ShapesCreated, "one rebuild once the mesh is cooked")
	assert.Equal(t, 1, stats.ShapesReleased)
	assert.Equal(t, 2, a.ShapeCount())
}

func TestMarkDirty_ScaleNoiseIgnored(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindStatic, "wall")
	node.SetScale(mgl32.Vec3{2, 2, 2})
	a := f.build(t, node)
	f.tick(0, a)

	node.SetScale(mgl32.Vec3{2.000001, 2, 2})
	f.tick(0, a)
	assert.Equal(t, 1, f.phys.Stats().ShapesCreated)

	node.SetScale(mgl32.Vec3{3, 2, 2})
	f.tick(0, a)
	assert.Equal(t, 2, f.phys.Stats().ShapesCreated)
}

func TestUpdateFilters(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindStatic, "wall")
	a := f.build(t, node)
	f.tick(0, a)

	node.SetFilterGroup(2)
	node.SetIgnoredGroups(1 << 3)
	f.tick(0, a)

	fd := fakeActor(a).Shapes()[0].FilterData()
	assert.Equal(t, native.FilterData{ID: 1 << 2, Mask: 1 << 3}, fd)
	assert.Equal(t, 1, f.phys.Stats().ShapesCreated, "filter changes do not rebuild")
}

func TestTrigger_ShapesAreTriggers(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindTrigger, "zone")
	a := f.build(t, node)
	f.tick(0, a)

	sh := fakeActor(a).Shapes()[0].(*fake.Shape)
	assert.True(t, sh.Trigger())
}

func TestInit_NoShapesThenRetry(t *testing.T) {
	f := setup(t)
	node := scene.NewNodeWithID(scene.KindStatic, "empty", "empty")
	a := New(node, 1)

	err := a.Init(f.env)
	assert.True(t, IsNoShapes(err))
	assert.True(t, a.Null())

	// Per-tick passes on a null actor are no-ops
	f.tick(0, a)
	require.NoError(t, a.RetryInit(f.env))
	assert.True(t, a.Null(), "nothing changed")

	node.AddShape(scene.NewBox(mgl32.Vec3{1, 1, 1}))
	require.NoError(t, a.RetryInit(f.env))
	assert.False(t, a.Null())
}

func TestStaticSync(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindStatic, "wall")
	a := f.build(t, node)
	f.tick(0, a)

	node.SetPosition(mgl32.Vec3{10, 0, 0})
	f.tick(0, a)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, a.Native().GlobalPose().Position)

	node.SetEnabled(false)
	f.tick(0, a)
	assert.False(t, fakeActor(a).SimulationEnabled())
	node.SetEnabled(true)
	f.tick(0, a)
	assert.True(t, fakeActor(a).SimulationEnabled())
}

func TestDynamicSync_PullsPoseInParentSpace(t *testing.T) {
	f := setup(t)
	root := scene.NewNodeWithID(scene.KindGroup, "root", "root")
	root.SetPosition(mgl32.Vec3{0, 100, 0})
	child := boxNode(scene.KindDynamic, "child")
	root.AddChild(child)

	a := f.build(t, child)
	assert.Equal(t, mgl32.Vec3{0, 100, 0}, a.Native().GlobalPose().Position)

	a.Native().SetGlobalPose(xform.NewPose(mgl32.Vec3{0, 50, 0}, mgl32.QuatIdent()))
	f.tick(1.0/60, a)

	assert.True(t, xform.VecApproxEqual(child.Position(), mgl32.Vec3{0, -50, 0}, 1e-4))
}

func TestDynamicSync_PushesKinematicTarget(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "platform")
	node.Dynamic.Kinematic = true
	target := xform.NewPose(mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent())
	node.Dynamic.SetKinematicTarget(target)

	a := f.build(t, node)
	f.tick(1.0/60, a)

	got, ok := fakeActor(a).KinematicTarget()
	require.True(t, ok)
	assert.Equal(t, target, got)
	assert.Equal(t, mgl32.Vec3{}, node.Position(), "kinematic bodies are not pulled")
}

func TestDynamic_MassFromDefaultDensity(t *testing.T) {
	f := setup(t)
	a := f.build(t, boxNode(scene.KindDynamic, "box"))
	f.tick(0, a)

	assert.InDelta(t, 1000, fakeActor(a).Mass(), 1e-2)
}

func TestDynamic_UpdateDefaultDensity(t *testing.T) {
	f := setup(t)
	a := f.build(t, boxNode(scene.KindDynamic, "box"))
	custom := boxNode(scene.KindDynamic, "custom")
	custom.Dynamic.MassMode = scene.MassExplicit
	custom.Dynamic.Mass = 3
	b := f.build(t, custom)
	f.tick(0, a, b)

	f.env.DefaultDensity = 0.002
	a.UpdateDefaultDensity(f.env)
	b.UpdateDefaultDensity(f.env)

	assert.InDelta(t, 2000, fakeActor(a).Mass(), 1e-2)
	assert.Equal(t, float32(3), fakeActor(b).Mass(), "explicit mass is kept")
}

func TestDynamic_StaticOnlyShapesForceKinematic(t *testing.T) {
	f := setup(t)
	node := scene.NewNodeWithID(scene.KindDynamic, "floor", "floor")
	node.AddShape(scene.NewPlane())

	a := f.build(t, node)
	f.tick(0, a)
	assert.True(t, fakeActor(a).Kinematic())
	assert.True(t, node.Dynamic.Kinematic)

	node.Dynamic.SetMass(5)
	node.Dynamic.SetKinematicCommand(false)
	f.tick(0, a)

	assert.Equal(t, float32(1), fakeActor(a).Mass(), "mass command consumed without effect")
	assert.True(t, fakeActor(a).Kinematic(), "non-kinematic request forced back")
	assert.Equal(t, 0, node.Dynamic.Commands.Len())
	assert.Equal(t, 0, f.phys.Stats().Violations)
}

func TestExecute_StaticOnlyError(t *testing.T) {
	f := setup(t)
	node := scene.NewNodeWithID(scene.KindDynamic, "floor", "floor")
	node.AddShape(scene.NewPlane())
	a := f.build(t, node)

	err := a.execute(f.env, node.Dynamic, scene.Command{Kind: scene.CmdSetMass, Scalar: 5})
	assert.True(t, IsStaticOnlyShapes(err))
	assert.Contains(t, err.Error(), "node=floor")
}

func TestCommands_ExecuteInSubmissionOrder(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "box")
	a := f.build(t, node)
	f.tick(0, a)

	var executed []scene.CommandKind
	f.env.OnCommand = func(n *scene.Node, c scene.Command) {
		assert.Same(t, node, n)
		executed = append(executed, c.Kind)
	}

	body := node.Dynamic
	body.ApplyCentralImpulse(mgl32.Vec3{0, 10, 0})
	body.SetLinearVelocity(mgl32.Vec3{1, 0, 0})
	body.SetGravityEnabledCommand(false)
	body.SetAngularVelocity(mgl32.Vec3{0, 1, 0})
	body.Reset(mgl32.Vec3{0, 5, 0}, mgl32.QuatIdent())
	require.Equal(t, 5, body.Commands.Len())

	f.tick(0, a)

	assert.Equal(t, []scene.CommandKind{
		scene.CmdApplyCentralImpulse,
		scene.CmdSetLinearVelocity,
		scene.CmdSetGravityEnabled,
		scene.CmdSetAngularVelocity,
		scene.CmdReset,
	}, executed)
	assert.Equal(t, 0, body.Commands.Len())

	fa := fakeActor(a)
	assert.Equal(t, mgl32.Vec3{}, fa.LinearVelocity(), "reset ran last")
	assert.False(t, fa.GravityEnabled())
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, node.Position(), "pose pulled after commands")

	// Executed exactly once
	f.tick(0, a)
	assert.Len(t, executed, 5)
}

func TestCommands_SetMassThenKinematic(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "box")
	a := f.build(t, node)
	f.tick(0, a)

	node.Dynamic.SetMass(5)
	node.Dynamic.SetKinematicCommand(true)
	f.tick(1.0/60, a)

	fa := fakeActor(a)
	assert.Equal(t, float32(5), fa.Mass())
	assert.True(t, fa.Kinematic())
	assert.Equal(t, 0, node.Dynamic.Commands.Len())
	assert.Equal(t, scene.MassExplicit, node.Dynamic.MassMode)
	assert.True(t, node.Dynamic.Kinematic)
}

func TestCommands_SetDensity(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "box")
	a := f.build(t, node)
	f.tick(0, a)

	node.Dynamic.SetDensity(0.002)
	f.tick(0, a)
	assert.InDelta(t, 2000, fakeActor(a).Mass(), 1e-2)

	// Non-positive density falls back to the world default
	node.Dynamic.SetDensity(-1)
	f.tick(0, a)
	assert.InDelta(t, 1000, fakeActor(a).Mass(), 1e-2)
	assert.Equal(t, scene.MassDefaultDensity, node.Dynamic.MassMode)
}

func TestCommands_SetMassAndInertiaMatrix(t *testing.T) {
	f := setup(t)
	node := boxNode(scene.KindDynamic, "box")
	a := f.build(t, node)
	f.tick(0, a)

	node.Dynamic.SetMassAndInertiaMatrix(3, mgl32.Diag3(mgl32.Vec3{4, 5, 6}))
	f.tick(0, a)

	fa := fakeActor(a)
	assert.Equal(t, float32(3), fa.Mass())
	assert.True(t, xform.VecApproxEqual(fa.InertiaTensor(), mgl32.Vec3{4, 5, 6}, 1e-4))
}

func TestCleanup_ReleasesOwnedMaterialOnly(t *testing.T) {
	f := setup(t)
	withMat := boxNode(scene.KindStatic, "a")
	withMat.SetMaterial(&scene.Material{StaticFriction: 0.2, DynamicFriction: 0.2, Restitution: 0.1})
	plain := boxNode(scene.KindStatic, "b")

	a := f.build(t, withMat)
	b := f.build(t, plain)
	f.tick(0, a, b)

	a.Cleanup(f.env)
	b.Cleanup(f.env)

	stats := f.phys.Stats()
	assert.Equal(t, 2, stats.MaterialsCreated)
	assert.Equal(t, 1, stats.MaterialsReleased)
	assert.Equal(t, 2, stats.ActorsReleased)
	assert.Equal(t, 2, stats.ShapesReleased)
	assert.Empty(t, f.scene.Actors())
	assert.Equal(t, 0, stats.Violations)
	assert.True(t, a.Null())
}

func TestMarkRemoved(t *testing.T) {
	f := setup(t)
	a := f.build(t, boxNode(scene.KindStatic, "a"))
	a.MarkRemoved()

	assert.True(t, a.Removed())
	assert.Nil(t, a.Node())
	f.tick(0, a)
	assert.Equal(t, 0, f.phys.Stats().ShapesCreated, "removed actors are inert")
}

func TestDebugShapes(t *testing.T) {
	f := setup(t)
	node := scene.NewNodeWithID(scene.KindStatic, "s", "s")
	node.SetPosition(mgl32.Vec3{0, 10, 0})
	sh := scene.NewSphere(2)
	sh.SetPosition(mgl32.Vec3{1, 0, 0})
	node.AddShape(sh)
	a := f.build(t, node)
	f.tick(0, a)

	shapes := a.DebugShapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, "s", shapes[0].Node)
	assert.Equal(t, native.GeometrySphere, shapes[0].Geometry.Type)
	assert.True(t, xform.VecApproxEqual(shapes[0].Pose.Position, mgl32.Vec3{1, 10, 0}, 1e-5))
}

func TestDiagonalize(t *testing.T) {
	t.Run("already diagonal", func(t *testing.T) {
		tensor, rot := Diagonalize(mgl32.Diag3(mgl32.Vec3{1, 2, 3}))
		assert.Equal(t, mgl32.Vec3{1, 2, 3}, tensor)
		assert.True(t, xform.QuatApproxEqual(rot, mgl32.QuatIdent(), 1e-6))
	})

	t.Run("rotated", func(t *testing.T) {
		r := mgl32.QuatRotate(0.7, mgl32.Vec3{1, 1, 0}.Normalize()).Mat4().Mat3()
		m := r.Mul3(mgl32.Diag3(mgl32.Vec3{1, 2, 3})).Mul3(r.Transpose())

		tensor, rot := Diagonalize(m)

		rr := rot.Mat4().Mat3()
		rebuilt := rr.Mul3(mgl32.Diag3(tensor)).Mul3(rr.Transpose())
		assert.True(t, xform.MatApproxEqual(rebuilt, m, 1e-4), "got %v want %v", rebuilt, m)
		assert.InDelta(t, 6, tensor.X()+tensor.Y()+tensor.Z(), 1e-4)
	})
}
