package sim

import (
	"github.com/l1jgo/courier/internal/core/ecs"
	"github.com/l1jgo/courier/internal/scripting"
)

// DamageCodec exposes Damage to Lua as {amount, kind, source, lethal}.
var DamageCodec = scripting.Codec[Damage]{
	Encode: func(d Damage) map[string]any {
		return map[string]any{
			"amount": d.Amount,
			"kind":   d.Kind,
			"source": d.Source,
			"lethal": d.Lethal,
		}
	},
	Decode: func(f map[string]any, prev Damage) Damage {
		if n, ok := scripting.Int(f, "amount"); ok {
			prev.Amount = max(0, n)
		}
		if k, ok := f["kind"].(string); ok {
			prev.Kind = k
		}
		return prev
	},
}

// HealCodec exposes Heal to Lua as {amount}.
var HealCodec = scripting.Codec[Heal]{
	Encode: func(h Heal) map[string]any {
		return map[string]any{"amount": h.Amount}
	},
	Decode: func(f map[string]any, prev Heal) Heal {
		if n, ok := scripting.Int(f, "amount"); ok {
			prev.Amount = n
		}
		return prev
	},
}

// HookScripts wires the optional Lua hooks the engine defines:
//
//	armor_damage(msg, ctx)  runs after Armor's own Damage handler
//	regen_heal(msg, ctx)    runs for Heal on entities with Regen
//
// It returns the names that were hooked.
func HookScripts(e *scripting.Engine, w *ecs.World) ([]string, error) {
	var hooked []string
	if e.HasFunction("armor_damage") {
		if err := scripting.Hook[Armor](e, w, "armor_damage", DamageCodec); err != nil {
			return hooked, err
		}
		hooked = append(hooked, "armor_damage")
	}
	if e.HasFunction("regen_heal") {
		if err := scripting.Hook[Regen](e, w, "regen_heal", HealCodec); err != nil {
			return hooked, err
		}
		hooked = append(hooked, "regen_heal")
	}
	return hooked, nil
}
