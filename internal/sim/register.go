package sim

import (
	"fmt"

	"github.com/l1jgo/courier/internal/blueprint"
	"github.com/l1jgo/courier/internal/core/ecs"
	"github.com/l1jgo/courier/internal/snapshot"
)

func init() {
	snapshot.RegisterResource[Population]("population")
}

// Register declares every sim component on w, installs the Population and
// Nursery resources and teaches fab to build sim components.
func Register(w *ecs.World, fab *blueprint.Fabricator) error {
	regs := []func(*ecs.World) error{
		registerArmor,
		registerVitals,
		registerRegen,
		registerPoison,
		registerBreeder,
		registerLifespan,
	}
	for _, reg := range regs {
		if err := reg(w); err != nil {
			return fmt.Errorf("register sim: %w", err)
		}
	}
	ecs.InsertResource(w, Population{})
	ecs.InsertResource(w, Nursery{Fab: fab})
	if fab != nil {
		fab.RegisterWorld(w)
	}
	return nil
}

func registerArmor(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Armor]) {
		b.Name("armor")
		ecs.HandleRead(b, func(a *Armor, m Damage, _ ecs.EntityID, _ *ecs.Access) (Damage, error) {
			m.Amount = max(0, m.Amount-a.Reduction)
			return m, nil
		})
		ecs.HandleRead(b, func(a *Armor, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.Armor += a.Reduction
			m.Components++
			return m, nil
		})
	})
}

func registerVitals(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Vitals]) {
		b.Name("vitals")
		b.OnCreate(func(_ *Vitals, _ ecs.EntityID, acc *ecs.CallbackAccess) {
			_ = ecs.WriteResource(acc, func(p *Population) {
				p.Alive++
				p.Born++
			})
		})
		b.OnRemove(func(_ Vitals, _ ecs.EntityID, acc *ecs.CallbackAccess) {
			_ = ecs.WriteResource(acc, func(p *Population) {
				p.Alive--
				p.Died++
			})
		})
		ecs.HandleWrite(b, func(v *Vitals, m Damage, owner ecs.EntityID, acc *ecs.Access) (Damage, error) {
			if v.HP <= 0 {
				return m, nil
			}
			v.HP -= m.Amount
			if v.HP <= 0 {
				v.HP = 0
				m.Lethal = true
				acc.LazyDespawn(owner)
			}
			return m, nil
		})
		ecs.HandleWrite(b, func(v *Vitals, m Heal, _ ecs.EntityID, _ *ecs.Access) (Heal, error) {
			if v.HP > 0 {
				v.HP = min(v.MaxHP, v.HP+m.Amount)
			}
			return m, nil
		})
		ecs.HandleRead(b, func(v *Vitals, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.HP, m.MaxHP = v.HP, v.MaxHP
			m.Components++
			return m, nil
		})
	})
}

// every advances a tick counter and reports whether it fired.
func every(counter *int, period int) bool {
	if period <= 0 {
		return false
	}
	*counter++
	if *counter < period {
		return false
	}
	*counter = 0
	return true
}

func registerRegen(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Regen]) {
		b.Name("regen")
		ecs.HandleWrite(b, func(r *Regen, m Tick, owner ecs.EntityID, acc *ecs.Access) (Tick, error) {
			if every(&r.Counter, r.Every) {
				ecs.QueueDispatch(acc, owner, Heal{Amount: r.Amount})
			}
			return m, nil
		})
		ecs.HandleRead(b, func(_ *Regen, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.Components++
			return m, nil
		})
	})
}

func registerPoison(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Poison]) {
		b.Name("poison")
		ecs.HandleWrite(b, func(p *Poison, m Tick, owner ecs.EntityID, acc *ecs.Access) (Tick, error) {
			if every(&p.Counter, p.Every) {
				ecs.QueueDispatch(acc, owner, Damage{Amount: p.Amount, Kind: "poison", Source: owner})
			}
			return m, nil
		})
		ecs.HandleRead(b, func(_ *Poison, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.Poisoned = true
			m.Components++
			return m, nil
		})
	})
}

func registerBreeder(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Breeder]) {
		b.Name("breeder")
		ecs.HandleWrite(b, func(br *Breeder, m Tick, _ ecs.EntityID, acc *ecs.Access) (Tick, error) {
			if !every(&br.Counter, br.Every) {
				return m, nil
			}
			var fab *blueprint.Fabricator
			if err := ecs.ReadResource(acc, func(n *Nursery) { fab = n.Fab }); err != nil {
				return m, err
			}
			if fab == nil {
				return m, fmt.Errorf("breeder: no fabricator in nursery")
			}
			for range max(br.Litter, 1) {
				if _, err := fab.LazySpawn(acc, br.Blueprint); err != nil {
					return m, err
				}
			}
			return m, nil
		})
		ecs.HandleRead(b, func(_ *Breeder, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.Breeding = true
			m.Components++
			return m, nil
		})
	})
}

func registerLifespan(w *ecs.World) error {
	return ecs.RegisterComponent(w, func(b *ecs.HandlerBuilder[Lifespan]) {
		b.Name("lifespan")
		ecs.HandleWrite(b, func(l *Lifespan, m Tick, owner ecs.EntityID, acc *ecs.Access) (Tick, error) {
			l.Ticks--
			if l.Ticks <= 0 {
				acc.LazyDespawn(owner)
			}
			return m, nil
		})
		ecs.HandleRead(b, func(l *Lifespan, m Census, _ ecs.EntityID, _ *ecs.Access) (Census, error) {
			m.TicksLeft = l.Ticks
			m.Components++
			return m, nil
		})
	})
}

// Recovering counts entities with Regen whose HP is below MaxHP. Call it
// between ticks, never from a handler.
func Recovering(w *ecs.World) int {
	vs, err := ecs.StoreOf[Vitals](w)
	if err != nil {
		return 0
	}
	rs, err := ecs.StoreOf[Regen](w)
	if err != nil {
		return 0
	}
	n := 0
	ecs.Each2(vs, rs, func(_ ecs.EntityID, v *Vitals, _ *Regen) {
		if v.HP > 0 && v.HP < v.MaxHP {
			n++
		}
	})
	return n
}

// PopulationOf reads the Population resource.
func PopulationOf(v ecs.Viewer) Population {
	var p Population
	_ = ecs.ReadResource(v, func(r *Population) { p = *r })
	return p
}
