package term

// Unit is a definition as read from a core file, together with the body that
// still has to be checked. The body is installed on the definition only
// after checking.
type Unit struct {
	Def  Definition
	Body Expr
	Elim *ElimBody
}

func (u *Unit) String() string { return u.Def.Name() }
