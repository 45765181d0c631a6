package snakebind

// Scalars go straight to the native constructors and accessors. The
// registry entries exist so containers of scalars can find them.

func scalar[T any](
	encode func(s *Scope, v T) (*Object, error),
	decode func(s *Scope, o *Object) (T, error),
) Converter[T] {
	return ConverterFuncs[T]{
		EncodeFunc: encode,
		DecodeFunc: func(s *Scope, o *Object) (T, error) {
			v, err := decode(s, o)
			if err != nil {
				var zero T
				return zero, &ConversionError{Type: typeOf[T](), PyType: s.TypeName(o), Err: err}
			}
			return v, nil
		},
	}
}

func registerScalars(r *Registry) {
	Register(r, scalar((*Scope).NewInt, (*Scope).AsInt))
	Register(r, scalar((*Scope).NewFloat, (*Scope).AsFloat))
	Register(r, scalar((*Scope).NewStr, (*Scope).AsStr))
	Register(r, scalar((*Scope).NewBool, (*Scope).AsBool))
	Register(r, scalar((*Scope).NewBytes, (*Scope).AsBytes))
}
