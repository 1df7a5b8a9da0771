package simulation

// View names the interactive visualization a simulation renders with.
type View string

const (
	ViewNewtonSecondLaw  View = "newton-second-law"
	ViewProjectileMotion View = "projectile-motion"
	ViewFriction         View = "friction"
	ViewOrbitals         View = "orbitals"
	// ViewPlaceholder marks identifiers the tutor may offer but that have no
	// dedicated visualization yet.
	ViewPlaceholder View = "placeholder"
)

// ID is one of the closed set of simulation identifiers the tutor can emit.
type ID string

const (
	NewtonsLaws       ID = "newtons_laws_simulation"
	ProjectileMotion  ID = "projectile_motion_simulation"
	Friction          ID = "friction_simulation"
	ElectricCircuit   ID = "electric_circuit_simulation"
	GravityOrbit      ID = "gravity_orbit_simulation"
	FluidDynamics     ID = "fluid_dynamics_simulation"
	WaveInterference  ID = "wave_interference_simulation"
	ChemicalReactions ID = "chemical_reactions_lab"
	DNAReplication    ID = "dna_replication_visualizer"
)

// Simulation describes an entry of the catalog exposed to the frontend.
type Simulation struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	View        View   `json:"view"`
	Implemented bool   `json:"implemented"`
	Description string `json:"description,omitempty"`
}

// Unknown is returned for identifiers outside the catalog.
var Unknown = Simulation{}

// Seed provides the simulations the tutor is allowed to offer.
func Seed() []Simulation {
	return []Simulation{
		{
			ID:          NewtonsLaws,
			Title:       "Newton's Second Law",
			View:        ViewNewtonSecondLaw,
			Implemented: true,
			Description: "Push a block with a chosen force and watch acceleration scale with mass.",
		},
		{
			ID:          ProjectileMotion,
			Title:       "Projectile Motion",
			View:        ViewProjectileMotion,
			Implemented: true,
			Description: "Launch a projectile at an angle and trace its parabolic path.",
		},
		{
			ID:          Friction,
			Title:       "Friction",
			View:        ViewFriction,
			Implemented: true,
			Description: "Slide objects over surfaces with different friction coefficients.",
		},
		{
			ID:          ElectricCircuit,
			Title:       "Electric Circuits",
			View:        ViewPlaceholder,
			Description: "Build series and parallel circuits.",
		},
		{
			ID:          GravityOrbit,
			Title:       "Gravity & Orbits",
			View:        ViewOrbitals,
			Implemented: true,
			Description: "Place bodies in orbit and observe how gravity bends their paths.",
		},
		{
			ID:          FluidDynamics,
			Title:       "Fluid Dynamics",
			View:        ViewPlaceholder,
			Description: "Explore flow, pressure and buoyancy.",
		},
		{
			ID:          WaveInterference,
			Title:       "Wave Interference",
			View:        ViewPlaceholder,
			Description: "Overlap two wave sources and find the nodes.",
		},
		{
			ID:          ChemicalReactions,
			Title:       "Chemical Reactions Lab",
			View:        ViewPlaceholder,
			Description: "Mix reactants and balance the resulting equations.",
		},
		{
			ID:          DNAReplication,
			Title:       "DNA Replication",
			View:        ViewPlaceholder,
			Description: "Step through unwinding and base pairing of a DNA strand.",
		},
	}
}
