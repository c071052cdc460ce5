package sqlinline

const QSelectIntegrationToken = `--sql 1f31ae35-1272-4c32-bce8-26d8b22d1a39
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql b564163a-696c-4736-a04b-e9baa343c0be
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
