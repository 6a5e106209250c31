package sqlinline

// Provider tokens are keyed by provider name; blank tokens are never stored.
const QSelectProviderToken = `--sql 3f0b8f4e-2a61-4c57-9e0d-6b1c2d7a9e14
select token
from provider_tokens
where provider = $1::text and token <> ''
limit 1;
`

const QUpsertProviderToken = `--sql c4e1a7d2-58b3-4f0e-a9c6-17d2e3f4b5a8
insert into provider_tokens (provider, token, properties, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = provider_tokens.properties || excluded.properties,
    updated_at = now();
`
